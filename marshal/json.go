// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package marshal

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/syunchanp/scimgate/base"
	"github.com/syunchanp/scimgate/schema"
)

// JsonMarshaller reads and writes the JSON wire form. Core-schema
// attributes sit at the top level, each extension schema nests under its
// URN, and the schemas array enumerates every URN present.
type JsonMarshaller struct{}

func (jm *JsonMarshaller) Marshal(so *base.SCIMObject, rd *schema.ResourceDescriptor) ([]byte, error) {
	obj := make(map[string]interface{})
	obj["schemas"] = so.Schemas()

	for _, sa := range so.AttributesOfSchema(rd.Schema) {
		obj[sa.GetType().Name] = jsonValue(sa)
	}

	for _, urn := range so.Schemas() {
		if schema.SameUrn(urn, rd.Schema) {
			continue
		}

		ext := make(map[string]interface{})
		for _, sa := range so.AttributesOfSchema(urn) {
			ext[sa.GetType().Name] = jsonValue(sa)
		}

		obj[urn] = ext
	}

	return json.Marshal(obj)
}

func jsonValue(sa *base.SCIMAttribute) interface{} {
	atType := sa.GetType()

	if atType.Plural {
		arr := make([]interface{}, 0, len(sa.Values))
		for _, av := range sa.Values {
			arr = append(arr, jsonComplexValue(atType, av))
		}

		return arr
	}

	av := sa.GetSingularValue()
	if av == nil {
		return nil
	}

	if av.IsSimple() {
		return jsonSimpleValue(atType, av.Simple)
	}

	return jsonComplexValue(atType, av)
}

func jsonComplexValue(atType *schema.AttributeDescriptor, av *base.AttributeValue) interface{} {
	if av.IsSimple() {
		return jsonSimpleValue(atType, av.Simple)
	}

	obj := make(map[string]interface{})
	for _, sub := range orderedSubAts(atType, av) {
		subAv := sub.GetSingularValue()
		if subAv != nil && subAv.IsSimple() {
			obj[sub.GetType().Name] = jsonSimpleValue(sub.GetType(), subAv.Simple)
		}
	}

	return obj
}

func jsonSimpleValue(atType *schema.AttributeDescriptor, sv base.SimpleValue) interface{} {
	switch atType.Type {
	case schema.BooleanType:
		return sv.GetBoolVal()

	case schema.IntegerType:
		return sv.GetIntVal()
	}

	// datetime and binary use their canonical string encodings
	return sv.String()
}

func (jm *JsonMarshaller) Unmarshal(data []byte, rd *schema.ResourceDescriptor) (*base.SCIMObject, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, base.NewInvalidResourceError("Error reading JSON: " + err.Error())
	}

	return jm.parseObject(obj, rd)
}

func (jm *JsonMarshaller) parseObject(obj map[string]interface{}, rd *schema.ResourceDescriptor) (*base.SCIMObject, error) {
	so := base.NewSCIMObject()

	for key, val := range obj {
		if strings.EqualFold(key, "schemas") {
			// derived from the attributes present
			continue
		}

		// a key containing a colon is an extension schema URN holding a
		// nested attribute object
		if strings.ContainsRune(key, ':') {
			ext, ok := val.(map[string]interface{})
			if !ok {
				return nil, base.NewInvalidResourceError(fmt.Sprintf("The extension schema %s must hold an object", key))
			}

			for name, subVal := range ext {
				if err := jm.parseAttribute(so, rd, key, name, subVal); err != nil {
					return nil, err
				}
			}

			continue
		}

		if err := jm.parseAttribute(so, rd, rd.Schema, key, val); err != nil {
			return nil, err
		}
	}

	return so, nil
}

func (jm *JsonMarshaller) parseAttribute(so *base.SCIMObject, rd *schema.ResourceDescriptor, schemaUrn string, name string, val interface{}) error {
	atType := rd.GetAttribute(schemaUrn, name)
	if atType == nil {
		// unknown attributes are ignored
		log.Debugf("ignoring the unknown attribute %s of schema %s", name, schemaUrn)
		return nil
	}

	if val == nil {
		return nil
	}

	if atType.Plural {
		arr, ok := val.([]interface{})
		if !ok {
			return base.NewInvalidValueError(fmt.Sprintf("The plural attribute %s must hold an array", atType.Name))
		}

		elements := make([]*base.AttributeValue, 0, len(arr))
		for _, el := range arr {
			av, err := parseJsonElement(atType, el)
			if err != nil {
				return err
			}

			elements = append(elements, av)
		}

		so.Add(base.NewPluralAttribute(atType, elements...))

		return nil
	}

	if atType.IsComplex() {
		sub, ok := val.(map[string]interface{})
		if !ok {
			return base.NewInvalidValueError(fmt.Sprintf("The complex attribute %s must hold an object", atType.Name))
		}

		av, err := parseJsonSubAts(atType, sub)
		if err != nil {
			return err
		}

		so.Add(base.NewSingularAttribute(atType, av))

		return nil
	}

	sv, err := parseJsonSimple(atType, val)
	if err != nil {
		return err
	}

	so.Add(base.NewSingularAttribute(atType, base.NewSimpleAttrValue(sv)))

	return nil
}

// one element of a plural, either an object with sub-attributes or a bare
// simple value standing for the value sub-attribute
func parseJsonElement(atType *schema.AttributeDescriptor, el interface{}) (*base.AttributeValue, error) {
	if sub, ok := el.(map[string]interface{}); ok {
		return parseJsonSubAts(atType, sub)
	}

	valueAt := atType.SubAttribute("value")
	if valueAt == nil {
		return nil, base.NewInvalidValueError(fmt.Sprintf("An element of the plural attribute %s must hold an object", atType.Name))
	}

	sv, err := parseJsonSimple(valueAt, el)
	if err != nil {
		return nil, err
	}

	av := base.NewComplexAttrValue()
	av.SetSubAttr(base.NewSingularAttribute(valueAt, base.NewSimpleAttrValue(sv)))

	return av, nil
}

func parseJsonSubAts(atType *schema.AttributeDescriptor, sub map[string]interface{}) (*base.AttributeValue, error) {
	av := base.NewComplexAttrValue()

	for name, subVal := range sub {
		subAt := atType.SubAttribute(name)
		if subAt == nil {
			log.Debugf("ignoring the unknown sub-attribute %s of attribute %s", name, atType.Name)
			continue
		}

		if subVal == nil {
			continue
		}

		sv, err := parseJsonSimple(subAt, subVal)
		if err != nil {
			return nil, err
		}

		av.SetSubAttr(base.NewSingularAttribute(subAt, base.NewSimpleAttrValue(sv)))
	}

	return av, nil
}

func parseJsonSimple(atType *schema.AttributeDescriptor, val interface{}) (base.SimpleValue, error) {
	switch v := val.(type) {
	case string:
		sv, serr := base.ParseValue(atType, v)
		if serr != nil {
			return base.SimpleValue{}, serr
		}

		return sv, nil

	case bool:
		if atType.Type != schema.BooleanType {
			return base.SimpleValue{}, base.NewInvalidValueError(fmt.Sprintf("Invalid boolean value for attribute %s", atType.Name))
		}

		return base.NewBooleanValue(v), nil

	case float64:
		if atType.Type != schema.IntegerType || v != math.Trunc(v) {
			return base.SimpleValue{}, base.NewInvalidValueError(fmt.Sprintf("Invalid numeric value for attribute %s", atType.Name))
		}

		return base.NewIntegerValue(int64(v)), nil
	}

	return base.SimpleValue{}, base.NewInvalidValueError(fmt.Sprintf("Invalid value for attribute %s", atType.Name))
}

func (jm *JsonMarshaller) MarshalList(lr *ListResponse, rd *schema.ResourceDescriptor) ([]byte, error) {
	resources := make([]json.RawMessage, 0, len(lr.Resources))
	for _, so := range lr.Resources {
		data, err := jm.Marshal(so, rd)
		if err != nil {
			return nil, err
		}

		resources = append(resources, data)
	}

	obj := map[string]interface{}{
		"totalResults": lr.TotalResults,
		"startIndex":   lr.StartIndex,
		"Resources":    resources,
	}

	return json.Marshal(obj)
}

func (jm *JsonMarshaller) UnmarshalList(data []byte, rd *schema.ResourceDescriptor) (*ListResponse, error) {
	var envelope struct {
		TotalResults int               `json:"totalResults"`
		StartIndex   int               `json:"startIndex"`
		Resources    []json.RawMessage `json:"Resources"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, base.NewInvalidResourceError("Error reading JSON: " + err.Error())
	}

	lr := &ListResponse{}
	lr.Resources = make([]*base.SCIMObject, 0, len(envelope.Resources))
	for _, raw := range envelope.Resources {
		so, err := jm.Unmarshal(raw, rd)
		if err != nil {
			return nil, err
		}

		lr.Resources = append(lr.Resources, so)
	}

	lr.TotalResults = envelope.TotalResults
	if lr.TotalResults == 0 {
		lr.TotalResults = len(lr.Resources)
	}

	lr.StartIndex = envelope.StartIndex
	if lr.StartIndex == 0 {
		lr.StartIndex = 1
	}

	return lr, nil
}

func (jm *JsonMarshaller) MarshalError(se *base.ScimError) []byte {
	return se.Serialize()
}

func (jm *JsonMarshaller) UnmarshalError(data []byte) (*base.ScimError, error) {
	var envelope struct {
		Errors []struct {
			Code        json.Number `json:"code"`
			Description string      `json:"description"`
		} `json:"Errors"`
	}

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, base.NewInvalidResourceError("Error reading JSON: " + err.Error())
	}

	if len(envelope.Errors) == 0 {
		return nil, base.NewInvalidResourceError("The error payload holds no Errors element")
	}

	code, err := envelope.Errors[0].Code.Int64()
	if err != nil {
		return nil, base.NewInvalidResourceError("Invalid status code in the error payload")
	}

	return base.NewErrorWithCode(int(code), envelope.Errors[0].Description), nil
}
