// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package base

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/syunchanp/scimgate/schema"
	"github.com/syunchanp/scimgate/utils"
)

// A single typed SCIM value. The held value is one of string, bool, int64,
// time.Time or []byte depending on the descriptor's data type. The string
// form returned by String() is the canonical over-the-wire encoding for
// every non-binary type.
type SimpleValue struct {
	val interface{}
}

func NewStringValue(s string) SimpleValue {
	return SimpleValue{val: s}
}

func NewBooleanValue(b bool) SimpleValue {
	return SimpleValue{val: b}
}

func NewIntegerValue(i int64) SimpleValue {
	return SimpleValue{val: i}
}

func NewDateTimeValue(t time.Time) SimpleValue {
	return SimpleValue{val: t.UTC()}
}

func NewBinaryValue(data []byte) SimpleValue {
	return SimpleValue{val: data}
}

func (sv SimpleValue) IsNil() bool {
	return sv.val == nil
}

func (sv SimpleValue) GetStringVal() string {
	return sv.val.(string)
}

func (sv SimpleValue) GetBoolVal() bool {
	return sv.val.(bool)
}

func (sv SimpleValue) GetIntVal() int64 {
	return sv.val.(int64)
}

func (sv SimpleValue) GetDateVal() time.Time {
	return sv.val.(time.Time)
}

func (sv SimpleValue) GetBinVal() []byte {
	return sv.val.([]byte)
}

// The canonical wire encoding of the value. Binary values encode to base64.
func (sv SimpleValue) String() string {
	switch v := sv.val.(type) {
	case string:
		return v

	case bool:
		return strconv.FormatBool(v)

	case int64:
		return strconv.FormatInt(v, 10)

	case time.Time:
		return utils.FormatDateTime(v)

	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	}

	return fmt.Sprint(sv.val)
}

// Parses the wire form of a value according to the descriptor's data type.
// Returns an invalidValue error on malformed input.
func ParseValue(atType *schema.AttributeDescriptor, wireVal string) (SimpleValue, *ScimError) {
	switch atType.Type {
	case schema.StringType:
		return NewStringValue(wireVal), nil

	case schema.BooleanType:
		switch strings.ToLower(wireVal) {
		case "true":
			return NewBooleanValue(true), nil
		case "false":
			return NewBooleanValue(false), nil
		}

		return SimpleValue{}, NewInvalidValueError(fmt.Sprintf("Invalid boolean value '%s' for attribute %s", wireVal, atType.Name))

	case schema.IntegerType:
		i, err := strconv.ParseInt(wireVal, 10, 64)
		if err != nil {
			return SimpleValue{}, NewInvalidValueError(fmt.Sprintf("Invalid integer value '%s' for attribute %s", wireVal, atType.Name))
		}

		return NewIntegerValue(i), nil

	case schema.DateTimeType:
		t, err := utils.ParseDateTime(wireVal)
		if err != nil {
			return SimpleValue{}, NewInvalidValueError(fmt.Sprintf("Invalid datetime value '%s' for attribute %s", wireVal, atType.Name))
		}

		return NewDateTimeValue(t), nil

	case schema.BinaryType:
		if !govalidator.IsBase64(wireVal) {
			return SimpleValue{}, NewInvalidValueError(fmt.Sprintf("Invalid base64 value for attribute %s", atType.Name))
		}

		data, err := base64.StdEncoding.DecodeString(wireVal)
		if err != nil {
			return SimpleValue{}, NewInvalidValueError(fmt.Sprintf("Invalid base64 value for attribute %s", atType.Name))
		}

		return NewBinaryValue(data), nil
	}

	return SimpleValue{}, NewInvalidValueError(fmt.Sprintf("Attribute %s cannot hold a simple value", atType.Name))
}

// Compares two values of the same descriptor. String comparison honors the
// descriptor's case rule, binary values compare byte for byte.
func (sv SimpleValue) Equals(other SimpleValue, atType *schema.AttributeDescriptor) bool {
	switch v := sv.val.(type) {
	case string:
		o, ok := other.val.(string)
		if !ok {
			return false
		}

		if atType != nil && atType.Type == schema.StringType && !atType.CaseExact {
			return strings.EqualFold(v, o)
		}

		return v == o

	case time.Time:
		o, ok := other.val.(time.Time)
		return ok && v.Equal(o)

	case []byte:
		o, ok := other.val.([]byte)
		if !ok || len(v) != len(o) {
			return false
		}

		for i := range v {
			if v[i] != o[i] {
				return false
			}
		}

		return true
	}

	return sv.val == other.val
}
