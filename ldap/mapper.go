// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"fmt"
	"strings"

	ldap3 "github.com/go-ldap/ldap/v3"

	"github.com/syunchanp/scimgate/base"
	"github.com/syunchanp/scimgate/schema"
)

// An attribute mapper translates one SCIM attribute to and from its LDAP
// form. The three implementations cover the simple, complex and plural
// descriptor shapes.
type AttributeMapper interface {
	Descriptor() *schema.AttributeDescriptor

	// The LDAP attribute types this mapper reads and writes.
	LdapAttributeTypes() []string

	// Stages the LDAP form of the SCIM attribute held by so, a no-op when
	// the attribute is absent.
	ToLdap(so *base.SCIMObject, eb *EntryBuilder) *base.ScimError

	// Builds the SCIM attribute from the entry, nil when the backing LDAP
	// attributes are absent.
	ToScim(entry *ldap3.Entry) (*base.SCIMAttribute, *base.ScimError)

	// Translates a filter leaf on this attribute to an LDAP filter
	// primitive. An empty string marks a leaf this mapper cannot express.
	ToLdapFilter(fn *base.FilterNode) (string, *base.ScimError)

	// The LDAP attribute to sort by when sorting on this attribute or one
	// of its sub-attributes, empty when not sortable.
	SortAttribute(subName string) string
}

// emits the LDAP primitive for one comparison op, the value must already be
// filter-escaped. GT and LT have no LDAP counterpart and widen to >= and <=,
// the query pipeline compensates by re-filtering in memory.
func filterPrimitive(op string, attr string, val string) string {
	switch op {
	case "EQ":
		return "(" + attr + "=" + val + ")"

	case "CO":
		return "(" + attr + "=*" + val + "*)"

	case "SW":
		return "(" + attr + "=" + val + "*)"

	case "PR":
		return "(" + attr + "=*)"

	case "GT", "GE":
		return "(" + attr + ">=" + val + ")"

	case "LT", "LE":
		return "(" + attr + "<=" + val + ")"
	}

	return ""
}

// SimpleMapper binds one singular simple SCIM attribute to one LDAP
// attribute type. It also serves as the per-sub-attribute worker inside the
// complex mapper.
type SimpleMapper struct {
	atType    *schema.AttributeDescriptor
	ldapAttr  string
	transform Transformation
}

func NewSimpleMapper(atType *schema.AttributeDescriptor, ldapAttr string, transform Transformation) *SimpleMapper {
	return &SimpleMapper{atType: atType, ldapAttr: ldapAttr, transform: transform}
}

func (sm *SimpleMapper) Descriptor() *schema.AttributeDescriptor {
	return sm.atType
}

func (sm *SimpleMapper) LdapAttributeTypes() []string {
	return []string{sm.ldapAttr}
}

func (sm *SimpleMapper) ToLdap(so *base.SCIMObject, eb *EntryBuilder) *base.ScimError {
	sa := so.Get(sm.atType.Schema, sm.atType.NormName)
	if sa == nil {
		return nil
	}

	av := sa.GetSingularValue()
	if av == nil || !av.IsSimple() {
		return base.NewInvalidValueError(fmt.Sprintf("The attribute %s must carry a simple value", sm.atType.Name))
	}

	val, err := sm.transform.ToLdapValue(sm.atType, av.Simple)
	if err != nil {
		return err
	}

	eb.Add(sm.ldapAttr, string(val))

	return nil
}

func (sm *SimpleMapper) ToScim(entry *ldap3.Entry) (*base.SCIMAttribute, *base.ScimError) {
	rawValues := rawAttributeValues(entry, sm.ldapAttr)
	if len(rawValues) == 0 {
		return nil, nil
	}

	// a multi-valued LDAP attribute behind a simple SCIM mapping takes the
	// first value in server order
	sv, err := sm.transform.ToScimValue(sm.atType, rawValues[0])
	if err != nil {
		return nil, err
	}

	return base.NewSingularAttribute(sm.atType, base.NewSimpleAttrValue(sv)), nil
}

func (sm *SimpleMapper) ToLdapFilter(fn *base.FilterNode) (string, *base.ScimError) {
	val := ""
	if fn.Op != "PR" {
		tv, err := sm.transform.ToLdapFilterValue(fn.Value)
		if err != nil {
			return "", err
		}

		val = ldap3.EscapeFilter(tv)
	}

	return filterPrimitive(fn.Op, sm.ldapAttr, val), nil
}

func (sm *SimpleMapper) SortAttribute(subName string) string {
	if len(subName) != 0 {
		return ""
	}

	return sm.ldapAttr
}

// ComplexMapper binds a singular complex SCIM attribute through one simple
// mapper per mapped sub-attribute. A sub-attribute absent in LDAP is absent
// in SCIM, the complex attribute is present when at least one sub-attribute
// is.
type ComplexMapper struct {
	atType     *schema.AttributeDescriptor
	subMappers []*SimpleMapper
}

func NewComplexMapper(atType *schema.AttributeDescriptor, subMappers []*SimpleMapper) *ComplexMapper {
	return &ComplexMapper{atType: atType, subMappers: subMappers}
}

func (cm *ComplexMapper) Descriptor() *schema.AttributeDescriptor {
	return cm.atType
}

func (cm *ComplexMapper) LdapAttributeTypes() []string {
	types := make([]string, 0, len(cm.subMappers))
	for _, sm := range cm.subMappers {
		types = append(types, sm.ldapAttr)
	}

	return types
}

func (cm *ComplexMapper) ToLdap(so *base.SCIMObject, eb *EntryBuilder) *base.ScimError {
	sa := so.Get(cm.atType.Schema, cm.atType.NormName)
	if sa == nil {
		return nil
	}

	av := sa.GetSingularValue()
	if av == nil || av.IsSimple() {
		return base.NewInvalidValueError(fmt.Sprintf("The attribute %s must carry a complex value", cm.atType.Name))
	}

	for _, sm := range cm.subMappers {
		sv, ok := av.SubValue(sm.atType.NormName)
		if !ok {
			continue
		}

		val, err := sm.transform.ToLdapValue(sm.atType, sv)
		if err != nil {
			return err
		}

		eb.Add(sm.ldapAttr, string(val))
	}

	return nil
}

func (cm *ComplexMapper) ToScim(entry *ldap3.Entry) (*base.SCIMAttribute, *base.ScimError) {
	av := base.NewComplexAttrValue()
	present := false

	for _, sm := range cm.subMappers {
		rawValues := rawAttributeValues(entry, sm.ldapAttr)
		if len(rawValues) == 0 {
			continue
		}

		sv, err := sm.transform.ToScimValue(sm.atType, rawValues[0])
		if err != nil {
			return nil, err
		}

		av.SetSubAttr(base.NewSingularAttribute(sm.atType, base.NewSimpleAttrValue(sv)))
		present = true
	}

	if !present {
		return nil, nil
	}

	return base.NewSingularAttribute(cm.atType, av), nil
}

func (cm *ComplexMapper) ToLdapFilter(fn *base.FilterNode) (string, *base.ScimError) {
	if len(fn.SubName) == 0 {
		// presence of the complex attribute means presence of any mapped
		// sub-attribute
		if fn.Op == "PR" {
			parts := make([]string, 0, len(cm.subMappers))
			for _, sm := range cm.subMappers {
				parts = append(parts, filterPrimitive("PR", sm.ldapAttr, ""))
			}

			return orJoin(parts), nil
		}

		return "", nil
	}

	sm := cm.subMapper(fn.SubName)
	if sm == nil {
		return "", nil
	}

	return sm.ToLdapFilter(fn)
}

func (cm *ComplexMapper) SortAttribute(subName string) string {
	if len(subName) == 0 {
		return ""
	}

	sm := cm.subMapper(subName)
	if sm == nil {
		return ""
	}

	return sm.ldapAttr
}

func (cm *ComplexMapper) subMapper(subName string) *SimpleMapper {
	subName = strings.ToLower(subName)
	for _, sm := range cm.subMappers {
		if sm.atType.NormName == subName {
			return sm
		}
	}

	return nil
}

// one LDAP backing of a plural attribute, either canonicalized to a plural
// type (mail for the work emails) or, with an empty pluralType, the default
// multi-valued backing whose every value becomes one element
type PluralBinding struct {
	PluralType string
	LdapAttr   string
	Transform  Transformation
}

// PluralMapper binds a plural SCIM attribute to a set of LDAP attribute
// types, one per canonical plural type and at most one untyped default.
type PluralMapper struct {
	atType   *schema.AttributeDescriptor
	valueAt  *schema.AttributeDescriptor
	typeAt   *schema.AttributeDescriptor
	bindings []PluralBinding
}

func NewPluralMapper(atType *schema.AttributeDescriptor, bindings []PluralBinding) *PluralMapper {
	pm := &PluralMapper{atType: atType, bindings: bindings}
	pm.valueAt = atType.SubAttribute("value")
	pm.typeAt = atType.SubAttribute("type")

	return pm
}

func (pm *PluralMapper) Descriptor() *schema.AttributeDescriptor {
	return pm.atType
}

func (pm *PluralMapper) LdapAttributeTypes() []string {
	types := make([]string, 0, len(pm.bindings))
	for _, b := range pm.bindings {
		types = append(types, b.LdapAttr)
	}

	return types
}

func (pm *PluralMapper) binding(pluralType string) *PluralBinding {
	var dflt *PluralBinding
	for i := range pm.bindings {
		b := &pm.bindings[i]
		if len(b.PluralType) == 0 {
			dflt = b
			continue
		}

		if strings.EqualFold(b.PluralType, pluralType) {
			return b
		}
	}

	if len(pluralType) == 0 {
		return dflt
	}

	return dflt
}

func (pm *PluralMapper) ToLdap(so *base.SCIMObject, eb *EntryBuilder) *base.ScimError {
	sa := so.Get(pm.atType.Schema, pm.atType.NormName)
	if sa == nil {
		return nil
	}

	for _, av := range sa.Values {
		if av.IsSimple() {
			return base.NewInvalidValueError(fmt.Sprintf("Elements of the plural attribute %s must carry sub-attributes", pm.atType.Name))
		}

		sv, ok := av.SubValue("value")
		if !ok {
			return base.NewInvalidValueError(fmt.Sprintf("An element of the plural attribute %s has no value sub-attribute", pm.atType.Name))
		}

		pluralType := ""
		if tv, ok := av.SubValue("type"); ok {
			pluralType = tv.GetStringVal()
		}

		b := pm.binding(pluralType)
		if b == nil {
			log.Warningf("no LDAP binding for the %s element of the plural attribute %s", pluralType, pm.atType.Name)
			continue
		}

		val, err := b.Transform.ToLdapValue(pm.valueAt, sv)
		if err != nil {
			return err
		}

		eb.Add(b.LdapAttr, string(val))
	}

	return nil
}

func (pm *PluralMapper) ToScim(entry *ldap3.Entry) (*base.SCIMAttribute, *base.ScimError) {
	elements := make([]*base.AttributeValue, 0)

	for _, b := range pm.bindings {
		for _, raw := range rawAttributeValues(entry, b.LdapAttr) {
			sv, err := b.Transform.ToScimValue(pm.valueAt, raw)
			if err != nil {
				return nil, err
			}

			av := base.NewComplexAttrValue()
			av.SetSubAttr(base.NewSingularAttribute(pm.valueAt, base.NewSimpleAttrValue(sv)))
			if len(b.PluralType) != 0 && pm.typeAt != nil {
				av.SetSubAttr(base.NewSingularAttribute(pm.typeAt, base.NewSimpleAttrValue(base.NewStringValue(b.PluralType))))
			}

			elements = append(elements, av)
		}
	}

	if len(elements) == 0 {
		return nil, nil
	}

	return base.NewPluralAttribute(pm.atType, elements...), nil
}

func (pm *PluralMapper) ToLdapFilter(fn *base.FilterNode) (string, *base.ScimError) {
	switch fn.SubName {
	case "", "value":
		parts := make([]string, 0, len(pm.bindings))
		for _, b := range pm.bindings {
			val := ""
			if fn.Op != "PR" {
				tv, err := b.Transform.ToLdapFilterValue(fn.Value)
				if err != nil {
					return "", err
				}

				val = ldap3.EscapeFilter(tv)
			}

			parts = append(parts, filterPrimitive(fn.Op, b.LdapAttr, val))
		}

		return orJoin(parts), nil

	case "type":
		// a match on the canonical type is a presence check on its backing
		if fn.Op != "EQ" {
			return "", nil
		}

		b := pm.binding(fn.Value)
		if b == nil || len(b.PluralType) == 0 {
			return "", nil
		}

		return filterPrimitive("PR", b.LdapAttr, ""), nil
	}

	return "", nil
}

func (pm *PluralMapper) SortAttribute(subName string) string {
	if subName != "" && subName != "value" {
		return ""
	}

	if len(pm.bindings) == 1 {
		return pm.bindings[0].LdapAttr
	}

	return ""
}

func orJoin(parts []string) string {
	if len(parts) == 0 {
		return ""
	}

	if len(parts) == 1 {
		return parts[0]
	}

	return "(|" + strings.Join(parts, "") + ")"
}

func andJoin(parts []string) string {
	if len(parts) == 0 {
		return ""
	}

	if len(parts) == 1 {
		return parts[0]
	}

	return "(&" + strings.Join(parts, "") + ")"
}

// first-match raw value access with case insensitive attribute naming
func rawAttributeValues(entry *ldap3.Entry, name string) [][]byte {
	for _, a := range entry.Attributes {
		if strings.EqualFold(a.Name, name) {
			if len(a.ByteValues) != 0 {
				return a.ByteValues
			}

			raw := make([][]byte, 0, len(a.Values))
			for _, v := range a.Values {
				raw = append(raw, []byte(v))
			}

			return raw
		}
	}

	return nil
}
