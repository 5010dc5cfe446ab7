// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"fmt"
	"strings"
	"time"

	"github.com/syunchanp/scimgate/base"
	"github.com/syunchanp/scimgate/schema"
	"github.com/syunchanp/scimgate/utils"
)

// A value transformation converts between the LDAP octet-string form of an
// attribute value and its typed SCIM form. Transformations are registered
// under a short name at startup, the mapping configuration references them
// by that name.
type Transformation interface {
	ToLdapValue(atType *schema.AttributeDescriptor, sv base.SimpleValue) ([]byte, *base.ScimError)

	ToScimValue(atType *schema.AttributeDescriptor, val []byte) (base.SimpleValue, *base.ScimError)

	// Converts a raw SCIM filter literal into the string to embed in an
	// LDAP filter assertion.
	ToLdapFilterValue(filterValue string) (string, *base.ScimError)
}

var transformRegistry = make(map[string]Transformation)

// Registers a transformation under the given name, replacing any earlier
// registration. Names are matched case insensitively.
func RegisterTransformation(name string, t Transformation) {
	transformRegistry[strings.ToLower(name)] = t
}

// Returns the transformation registered under name. The empty name selects
// the default transformation.
func GetTransformation(name string) (Transformation, error) {
	if len(strings.TrimSpace(name)) == 0 {
		name = "default"
	}

	t, ok := transformRegistry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("No transformation registered under the name %s", name)
	}

	return t, nil
}

func init() {
	RegisterTransformation("default", &defaultTransformation{})
	RegisterTransformation("generalizedTime", &generalizedTimeTransformation{})
	RegisterTransformation("postalAddress", &postalAddressTransformation{})
	RegisterTransformation("telephoneNumber", &telephoneNumberTransformation{})
}

// the generalized time layouts accepted from the directory
var genTimeLayouts = []string{
	"20060102150405.000Z",
	"20060102150405Z",
	"20060102150405.000-0700",
	"20060102150405-0700",
}

// defaultTransformation carries values through using the canonical wire
// string form, binary values pass as raw bytes.
type defaultTransformation struct{}

func (t *defaultTransformation) ToLdapValue(atType *schema.AttributeDescriptor, sv base.SimpleValue) ([]byte, *base.ScimError) {
	if atType.Type == schema.BinaryType {
		return sv.GetBinVal(), nil
	}

	return []byte(sv.String()), nil
}

func (t *defaultTransformation) ToScimValue(atType *schema.AttributeDescriptor, val []byte) (base.SimpleValue, *base.ScimError) {
	if atType.Type == schema.BinaryType {
		return base.NewBinaryValue(val), nil
	}

	return base.ParseValue(atType, string(val))
}

func (t *defaultTransformation) ToLdapFilterValue(filterValue string) (string, *base.ScimError) {
	return filterValue, nil
}

// generalizedTimeTransformation maps ISO-8601 UTC datetimes to the LDAP
// generalized time syntax YYYYMMDDhhmmss.sssZ.
type generalizedTimeTransformation struct{}

func (t *generalizedTimeTransformation) ToLdapValue(atType *schema.AttributeDescriptor, sv base.SimpleValue) ([]byte, *base.ScimError) {
	var gt time.Time
	if atType.Type == schema.DateTimeType {
		gt = sv.GetDateVal()
	} else {
		var err error
		gt, err = utils.ParseDateTime(sv.String())
		if err != nil {
			return nil, base.NewInvalidValueError(fmt.Sprintf("Invalid datetime value %s for attribute %s", sv.String(), atType.Name))
		}
	}

	return []byte(gt.UTC().Format("20060102150405.000Z")), nil
}

func (t *generalizedTimeTransformation) ToScimValue(atType *schema.AttributeDescriptor, val []byte) (base.SimpleValue, *base.ScimError) {
	gt, err := parseGeneralizedTime(string(val))
	if err != nil {
		return base.SimpleValue{}, base.NewInvalidValueError(err.Error())
	}

	return base.NewDateTimeValue(gt), nil
}

func (t *generalizedTimeTransformation) ToLdapFilterValue(filterValue string) (string, *base.ScimError) {
	pt, err := utils.ParseDateTime(filterValue)
	if err != nil {
		return "", base.NewInvalidValueError(fmt.Sprintf("Invalid datetime filter value %s", filterValue))
	}

	return pt.UTC().Format("20060102150405.000Z"), nil
}

func parseGeneralizedTime(val string) (time.Time, error) {
	val = strings.TrimSpace(val)
	for _, layout := range genTimeLayouts {
		t, err := time.Parse(layout, val)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("Invalid generalized time value %s", val)
}

// postalAddressTransformation maps the SCIM multi-line address form to the
// RFC 4517 postalAddress syntax where lines are joined by '$' and literal
// '$' and '\' characters are escaped as \24 and \5C.
type postalAddressTransformation struct{}

func (t *postalAddressTransformation) ToLdapValue(atType *schema.AttributeDescriptor, sv base.SimpleValue) ([]byte, *base.ScimError) {
	lines := strings.Split(sv.GetStringVal(), "\n")
	for i, line := range lines {
		line = strings.Replace(line, `\`, `\5C`, -1)
		lines[i] = strings.Replace(line, "$", `\24`, -1)
	}

	return []byte(strings.Join(lines, "$")), nil
}

func (t *postalAddressTransformation) ToScimValue(atType *schema.AttributeDescriptor, val []byte) (base.SimpleValue, *base.ScimError) {
	lines := strings.Split(string(val), "$")
	for i, line := range lines {
		line = strings.Replace(line, `\24`, "$", -1)
		lines[i] = strings.Replace(line, `\5C`, `\`, -1)
	}

	return base.NewStringValue(strings.Join(lines, "\n")), nil
}

func (t *postalAddressTransformation) ToLdapFilterValue(filterValue string) (string, *base.ScimError) {
	filterValue = strings.Replace(filterValue, `\`, `\5C`, -1)
	return strings.Replace(filterValue, "$", `\24`, -1), nil
}

// telephoneNumberTransformation passes numbers through unchanged, filter
// values drop the characters the telephoneNumberMatch rule ignores.
type telephoneNumberTransformation struct{}

func (t *telephoneNumberTransformation) ToLdapValue(atType *schema.AttributeDescriptor, sv base.SimpleValue) ([]byte, *base.ScimError) {
	num := strings.TrimSpace(sv.GetStringVal())
	if len(num) == 0 {
		return nil, base.NewInvalidValueError("Empty telephone number value for attribute " + atType.Name)
	}

	return []byte(num), nil
}

func (t *telephoneNumberTransformation) ToScimValue(atType *schema.AttributeDescriptor, val []byte) (base.SimpleValue, *base.ScimError) {
	return base.NewStringValue(string(val)), nil
}

func (t *telephoneNumberTransformation) ToLdapFilterValue(filterValue string) (string, *base.ScimError) {
	filterValue = strings.Replace(filterValue, " ", "", -1)
	return strings.Replace(filterValue, "-", "", -1), nil
}
