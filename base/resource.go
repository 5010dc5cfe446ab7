// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package base

import (
	logger "github.com/juju/loggo"
	"sort"
	"strings"

	"github.com/syunchanp/scimgate/schema"
)

const URI_DELIM = ":"

const ATTR_DELIM = "."

var log logger.Logger

func init() {
	log = logger.GetLogger("scimgate.base")
}

// One value of a SCIM attribute. Either a simple typed value or, for
// complex values and plural elements, a bag of sub-attributes keyed by the
// lowercase sub-attribute name.
type AttributeValue struct {
	Simple SimpleValue
	Sub    map[string]*SCIMAttribute
}

func NewSimpleAttrValue(sv SimpleValue) *AttributeValue {
	return &AttributeValue{Simple: sv}
}

func NewComplexAttrValue() *AttributeValue {
	return &AttributeValue{Sub: make(map[string]*SCIMAttribute)}
}

func (av *AttributeValue) IsSimple() bool {
	return av.Sub == nil
}

func (av *AttributeValue) SetSubAttr(sa *SCIMAttribute) {
	av.Sub[sa.GetType().NormName] = sa
}

func (av *AttributeValue) SubAttr(name string) *SCIMAttribute {
	if av.Sub == nil {
		return nil
	}

	return av.Sub[strings.ToLower(name)]
}

// Returns the simple value of the named sub-attribute, the second return
// value tells whether the sub-attribute is present.
func (av *AttributeValue) SubValue(name string) (SimpleValue, bool) {
	sa := av.SubAttr(name)
	if sa == nil || len(sa.Values) == 0 {
		return SimpleValue{}, false
	}

	return sa.Values[0].Simple, true
}

// A SCIM attribute, the pairing of a descriptor with one value (singular)
// or an ordered sequence of values (plural). The order of plural values is
// preserved but carries no meaning for equality.
type SCIMAttribute struct {
	atType *schema.AttributeDescriptor
	Values []*AttributeValue
}

func NewSingularAttribute(atType *schema.AttributeDescriptor, val *AttributeValue) *SCIMAttribute {
	return &SCIMAttribute{atType: atType, Values: []*AttributeValue{val}}
}

func NewPluralAttribute(atType *schema.AttributeDescriptor, vals ...*AttributeValue) *SCIMAttribute {
	sa := &SCIMAttribute{atType: atType}
	sa.Values = make([]*AttributeValue, 0, len(vals))
	sa.Values = append(sa.Values, vals...)

	return sa
}

// Builds a complex attribute value from the given sub-attribute values
// using the parent descriptor to resolve sub-descriptors. Unknown
// sub-attribute names are dropped with a warning.
func NewComplexValueOf(atType *schema.AttributeDescriptor, subVals map[string]SimpleValue) *AttributeValue {
	av := NewComplexAttrValue()
	for name, sv := range subVals {
		subType := atType.SubAttribute(name)
		if subType == nil {
			log.Warningf("Unknown sub-attribute %s of attribute %s", name, atType.Name)
			continue
		}

		av.SetSubAttr(NewSingularAttribute(subType, NewSimpleAttrValue(sv)))
	}

	return av
}

func (sa *SCIMAttribute) GetType() *schema.AttributeDescriptor {
	return sa.atType
}

// The single value of a singular attribute, or the first value of a plural.
func (sa *SCIMAttribute) GetSingularValue() *AttributeValue {
	if len(sa.Values) == 0 {
		return nil
	}

	return sa.Values[0]
}

func (sa *SCIMAttribute) AddValue(av *AttributeValue) {
	sa.Values = append(sa.Values, av)
}

// The in-memory SCIM resource, a bag of attributes keyed case insensitively
// by (schema URN, attribute name). Instances are built by the unmarshaller
// or the resource mapper, mutated only during construction and never shared
// across requests.
type SCIMObject struct {
	attrs map[string]map[string]*SCIMAttribute // lowercase urn -> lowercase name
	urns  map[string]string                    // lowercase urn -> urn as first seen
}

func NewSCIMObject() *SCIMObject {
	so := &SCIMObject{}
	so.attrs = make(map[string]map[string]*SCIMAttribute)
	so.urns = make(map[string]string)

	return so
}

// Adds the given attribute, replacing any attribute already present under
// the same (schema, name) key.
func (so *SCIMObject) Add(sa *SCIMAttribute) {
	atType := sa.GetType()
	urnKey := strings.ToLower(atType.Schema)

	m := so.attrs[urnKey]
	if m == nil {
		m = make(map[string]*SCIMAttribute)
		so.attrs[urnKey] = m
		so.urns[urnKey] = atType.Schema
	}

	m[atType.NormName] = sa
}

func (so *SCIMObject) Get(schemaUrn string, name string) *SCIMAttribute {
	m := so.attrs[strings.ToLower(schemaUrn)]
	if m == nil {
		return nil
	}

	return m[strings.ToLower(name)]
}

func (so *SCIMObject) Remove(schemaUrn string, name string) *SCIMAttribute {
	urnKey := strings.ToLower(schemaUrn)
	m := so.attrs[urnKey]
	if m == nil {
		return nil
	}

	nameKey := strings.ToLower(name)
	sa, ok := m[nameKey]
	if !ok {
		return nil
	}

	delete(m, nameKey)
	if len(m) == 0 {
		delete(so.attrs, urnKey)
		delete(so.urns, urnKey)
	}

	return sa
}

// Returns the attributes held under the given schema URN sorted by name so
// that serialization is deterministic.
func (so *SCIMObject) AttributesOfSchema(schemaUrn string) []*SCIMAttribute {
	m := so.attrs[strings.ToLower(schemaUrn)]
	if m == nil {
		return nil
	}

	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}

	sort.Strings(names)

	list := make([]*SCIMAttribute, 0, len(m))
	for _, k := range names {
		list = append(list, m[k])
	}

	return list
}

// Enumerates every schema URN with at least one attribute present, sorted.
func (so *SCIMObject) Schemas() []string {
	urns := make([]string, 0, len(so.urns))
	for _, v := range so.urns {
		urns = append(urns, v)
	}

	sort.Strings(urns)

	return urns
}

func (so *SCIMObject) HasAttribute(schemaUrn string, name string) bool {
	return so.Get(schemaUrn, name) != nil
}

// Compares two resources attribute by attribute. The order of plural values
// is ignored, everything else must match.
func (so *SCIMObject) EqualsIgnoringOrder(other *SCIMObject) bool {
	if len(so.attrs) != len(other.attrs) {
		return false
	}

	for urnKey, m := range so.attrs {
		om := other.attrs[urnKey]
		if om == nil || len(m) != len(om) {
			return false
		}

		for nameKey, sa := range m {
			osa := om[nameKey]
			if osa == nil || !attributesEqual(sa, osa) {
				return false
			}
		}
	}

	return true
}

func attributesEqual(a *SCIMAttribute, b *SCIMAttribute) bool {
	if len(a.Values) != len(b.Values) {
		return false
	}

	atType := a.GetType()
	if !atType.Plural {
		return valuesEqual(a.Values[0], b.Values[0], atType)
	}

	matched := make([]bool, len(b.Values))
outer:
	for _, av := range a.Values {
		for i, bv := range b.Values {
			if !matched[i] && valuesEqual(av, bv, atType) {
				matched[i] = true
				continue outer
			}
		}

		return false
	}

	return true
}

func valuesEqual(a *AttributeValue, b *AttributeValue, atType *schema.AttributeDescriptor) bool {
	if a.IsSimple() != b.IsSimple() {
		return false
	}

	if a.IsSimple() {
		return a.Simple.Equals(b.Simple, atType)
	}

	if len(a.Sub) != len(b.Sub) {
		return false
	}

	for name, sa := range a.Sub {
		sb := b.Sub[name]
		if sb == nil {
			return false
		}

		if !valuesEqual(sa.Values[0], sb.Values[0], sa.GetType()) {
			return false
		}
	}

	return true
}
