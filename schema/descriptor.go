// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package schema

import (
	"fmt"
	logger "github.com/juju/loggo"
	"regexp"
	"strings"
)

// The data types a SCIM attribute can hold.
type DataType string

const (
	StringType   DataType = "string"
	BooleanType  DataType = "boolean"
	IntegerType  DataType = "integer"
	DateTimeType DataType = "datetime"
	BinaryType   DataType = "binary"
	ComplexType  DataType = "complex"
)

var validTypes = []DataType{StringType, BooleanType, IntegerType, DateTimeType, BinaryType, ComplexType}

var validNameRegex = regexp.MustCompile(`^[0-9A-Za-z_$-]+$`)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimgate.schema")
}

func ParseDataType(name string) (DataType, error) {
	dt := DataType(strings.ToLower(strings.TrimSpace(name)))
	for _, v := range validTypes {
		if v == dt {
			return dt, nil
		}
	}

	return "", fmt.Errorf("Invalid attribute data type %s", name)
}

// The definition of an attribute's type. Instances are built once while
// loading the mapping configuration and never mutated afterwards.
// Name is kept as given, NormName is the lowercase form used as a map key
// everywhere else in the codebase.
type AttributeDescriptor struct {
	Schema      string
	Name        string
	NormName    string
	Type        DataType
	Plural      bool
	ReadOnly    bool
	Required    bool
	CaseExact   bool
	Description string

	SubAttributes []*AttributeDescriptor
	SubAttrMap    map[string]*AttributeDescriptor
	PluralTypes   []string

	parent *AttributeDescriptor
}

type ValidationErrors struct {
	Count int
	Msgs  []string
}

func (ve *ValidationErrors) Error() string {
	return fmt.Sprintf("Total %d errors\n%v", ve.Count, ve.Msgs)
}

func (ve *ValidationErrors) add(e string) {
	ve.Count++
	ve.Msgs = append(ve.Msgs, e)
}

// Creates the descriptor of a singular simple attribute.
func SingularSimple(name string, dataType DataType, description string, schemaUrn string, readOnly bool, required bool, caseExact bool) (*AttributeDescriptor, error) {
	at := newDescriptor(name, dataType, description, schemaUrn, readOnly, required, caseExact)
	if err := validateDescriptor(at); err != nil {
		return nil, err
	}

	return at, nil
}

// Creates the descriptor of a singular complex attribute with the given
// sub-attribute descriptors.
func SingularComplex(name string, description string, schemaUrn string, readOnly bool, required bool, subAttrs []*AttributeDescriptor) (*AttributeDescriptor, error) {
	at := newDescriptor(name, ComplexType, description, schemaUrn, readOnly, required, false)
	if err := setSubAttributes(at, subAttrs); err != nil {
		return nil, err
	}

	if err := validateDescriptor(at); err != nil {
		return nil, err
	}

	return at, nil
}

// Creates the descriptor of a plural simple attribute. Elements of a plural
// are value bags on the wire, so the canonical sub-attributes are synthesized
// here with the value sub-attribute taking the declared data type.
func PluralSimple(name string, dataType DataType, description string, schemaUrn string, readOnly bool, required bool, caseExact bool, pluralTypes []string) (*AttributeDescriptor, error) {
	at := newDescriptor(name, dataType, description, schemaUrn, readOnly, required, caseExact)
	at.Plural = true
	at.PluralTypes = pluralTypes
	at.SubAttributes = make([]*AttributeDescriptor, 0, 5)
	at.SubAttrMap = make(map[string]*AttributeDescriptor, 5)

	addDefSubAttrs(at)
	valueAt := at.SubAttrMap["value"]
	valueAt.Type = dataType
	if dataType == StringType || dataType == BinaryType {
		valueAt.CaseExact = caseExact
	}

	if err := validateDescriptor(at); err != nil {
		return nil, err
	}

	return at, nil
}

// Creates the descriptor of a plural complex attribute. Each element of the
// plural carries the given sub-attributes, the canonical value/type/primary/
// display/operation sub-attributes are added when absent.
func PluralComplex(name string, description string, schemaUrn string, readOnly bool, required bool, pluralTypes []string, subAttrs []*AttributeDescriptor) (*AttributeDescriptor, error) {
	at := newDescriptor(name, ComplexType, description, schemaUrn, readOnly, required, false)
	at.Plural = true
	at.PluralTypes = pluralTypes
	if err := setSubAttributes(at, subAttrs); err != nil {
		return nil, err
	}

	addDefSubAttrs(at)

	if err := validateDescriptor(at); err != nil {
		return nil, err
	}

	return at, nil
}

func newDescriptor(name string, dataType DataType, description string, schemaUrn string, readOnly bool, required bool, caseExact bool) *AttributeDescriptor {
	at := &AttributeDescriptor{}
	at.Name = name
	at.NormName = strings.ToLower(name)
	at.Type = dataType
	at.Description = description
	at.Schema = schemaUrn
	at.ReadOnly = readOnly
	at.Required = required

	// caseExact only carries meaning for string and binary values
	if dataType == StringType || dataType == BinaryType {
		at.CaseExact = caseExact
	}

	return at
}

func setSubAttributes(at *AttributeDescriptor, subAttrs []*AttributeDescriptor) error {
	at.SubAttributes = make([]*AttributeDescriptor, 0, len(subAttrs))
	at.SubAttrMap = make(map[string]*AttributeDescriptor, len(subAttrs))

	for _, sa := range subAttrs {
		key := sa.NormName
		if _, ok := at.SubAttrMap[key]; ok {
			return fmt.Errorf("Duplicate sub-attribute %s in attribute %s", sa.Name, at.Name)
		}

		if sa.IsComplex() || sa.Plural {
			return fmt.Errorf("Sub-attribute %s of attribute %s must be singular and simple", sa.Name, at.Name)
		}

		sa.parent = at
		at.SubAttributes = append(at.SubAttributes, sa)
		at.SubAttrMap[key] = sa
	}

	return nil
}

// adds the normative sub-attributes of a plural element when the
// configuration did not declare them
func addDefSubAttrs(at *AttributeDescriptor) {
	defArr := [5]*AttributeDescriptor{}
	defArr[0] = newDescriptor("value", StringType, "", at.Schema, at.ReadOnly, false, at.CaseExact)
	defArr[1] = newDescriptor("type", StringType, "", at.Schema, at.ReadOnly, false, false)
	defArr[2] = newDescriptor("primary", BooleanType, "", at.Schema, at.ReadOnly, false, false)
	defArr[3] = newDescriptor("display", StringType, "", at.Schema, at.ReadOnly, false, false)
	defArr[4] = newDescriptor("operation", StringType, "", at.Schema, at.ReadOnly, false, false)

	for _, sa := range defArr {
		if _, ok := at.SubAttrMap[sa.NormName]; !ok {
			sa.parent = at
			at.SubAttributes = append(at.SubAttributes, sa)
			at.SubAttrMap[sa.NormName] = sa
		}
	}
}

func validateDescriptor(at *AttributeDescriptor) error {
	ve := &ValidationErrors{}

	if !validNameRegex.MatchString(at.Name) {
		ve.add("Invalid attribute name '" + at.Name + "'")
	}

	if len(at.Schema) == 0 {
		ve.add("No schema URN set for attribute " + at.Name)
	}

	if at.IsComplex() && len(at.SubAttributes) == 0 {
		ve.add("No sub-attributes set for the complex attribute " + at.Name)
	}

	if !at.IsComplex() && !at.Plural && len(at.SubAttributes) != 0 {
		ve.add("Sub-attributes set on the non-complex attribute " + at.Name)
	}

	if ve.Count > 0 {
		return ve
	}

	return nil
}

func (at *AttributeDescriptor) IsComplex() bool {
	return at.Type == ComplexType
}

func (at *AttributeDescriptor) IsSimple() bool {
	return !at.IsComplex()
}

func (at *AttributeDescriptor) Parent() *AttributeDescriptor {
	return at.parent
}

// Returns the sub-attribute descriptor with the given name, the name is
// matched case insensitively. Returns nil for simple attributes.
func (at *AttributeDescriptor) SubAttribute(name string) *AttributeDescriptor {
	if at.SubAttrMap == nil {
		return nil
	}

	return at.SubAttrMap[strings.ToLower(name)]
}

func (at *AttributeDescriptor) HasPluralType(name string) bool {
	for _, pt := range at.PluralTypes {
		if strings.EqualFold(pt, name) {
			return true
		}
	}

	return false
}

// Two schema URNs identify the same schema when they match case insensitively.
func SameUrn(a string, b string) bool {
	return strings.EqualFold(a, b)
}
