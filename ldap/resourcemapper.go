// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"context"
	"fmt"
	"strings"

	ldap3 "github.com/go-ldap/ldap/v3"

	"github.com/syunchanp/scimgate/base"
	"github.com/syunchanp/scimgate/schema"
)

const objectClassAttr = "objectClass"

// The conflict policy of a fixed attribute, deciding what happens when a
// mapper stages values for the same LDAP attribute type.
const (
	MERGE     = "MERGE"
	OVERWRITE = "OVERWRITE"
	PRESERVE  = "PRESERVE"
)

// An attribute every created entry carries with a fixed value.
type FixedAttribute struct {
	LdapAttr   string
	Values     []string
	OnConflict string
}

// ResourceMapper performs the end to end translation between the SCIM
// resources of one configured resource type and LDAP entries. Instances are
// built once from configuration and safely shared across requests.
type ResourceMapper struct {
	ResourceName string
	Endpoint     string

	rd *schema.ResourceDescriptor

	searchBaseDN    string
	searchScope     int
	searchFilter    *ldapFilter
	searchFilterStr string

	dnConstructor   *ConstructedValue
	fixedAttributes []FixedAttribute
	idAttr          string

	mappers []AttributeMapper
	derived []DerivedAttribute
}

type ResourceMapperParams struct {
	ResourceDescriptor *schema.ResourceDescriptor
	SearchBaseDN       string
	SearchScope        string // "sub" or "one"
	SearchFilter       string
	DnTemplate         string // empty disables create
	FixedAttributes    []FixedAttribute
	IdAttribute        string // defaults to the RDN attribute of the template
	Mappers            []AttributeMapper
	Derived            []DerivedAttribute
}

func NewResourceMapper(params ResourceMapperParams) (*ResourceMapper, error) {
	rd := params.ResourceDescriptor

	rm := &ResourceMapper{}
	rm.ResourceName = rd.Name
	rm.Endpoint = rd.Endpoint
	rm.rd = rd
	rm.searchBaseDN = strings.TrimSpace(params.SearchBaseDN)
	rm.mappers = params.Mappers
	rm.derived = params.Derived
	rm.fixedAttributes = params.FixedAttributes

	switch strings.ToLower(strings.TrimSpace(params.SearchScope)) {
	case "", "sub":
		rm.searchScope = ldap3.ScopeWholeSubtree
	case "one":
		rm.searchScope = ldap3.ScopeSingleLevel
	default:
		return nil, fmt.Errorf("Invalid search scope '%s' for the %s resource", params.SearchScope, rd.Name)
	}

	if len(strings.TrimSpace(params.SearchFilter)) != 0 {
		f, err := ParseLdapFilter(params.SearchFilter)
		if err != nil {
			return nil, fmt.Errorf("Invalid search filter for the %s resource: %s", rd.Name, err)
		}

		rm.searchFilter = f
		rm.searchFilterStr = f.String()
	}

	if len(strings.TrimSpace(params.DnTemplate)) != 0 {
		cv, err := NewConstructedValue(strings.TrimSpace(params.DnTemplate))
		if err != nil {
			return nil, err
		}

		rm.dnConstructor = cv
	}

	rm.idAttr = strings.TrimSpace(params.IdAttribute)
	if len(rm.idAttr) == 0 && rm.dnConstructor != nil {
		rm.idAttr = rm.dnConstructor.FirstAttribute()
	}

	return rm, nil
}

func (rm *ResourceMapper) ResourceDescriptor() *schema.ResourceDescriptor {
	return rm.rd
}

func (rm *ResourceMapper) SearchBaseDN() string {
	return rm.searchBaseDN
}

func (rm *ResourceMapper) SearchScope() int {
	return rm.searchScope
}

func (rm *ResourceMapper) SupportsCreate() bool {
	return rm.dnConstructor != nil
}

// The LDAP attribute whose value serves as the SCIM resource id, the RDN
// attribute of the DN template unless configured otherwise.
func (rm *ResourceMapper) IdAttribute() string {
	return rm.idAttr
}

// The union of the LDAP attribute types needed to serve the requested
// attributes, plus the entry's objectClass.
func (rm *ResourceMapper) LdapAttributeTypes(qa *base.QueryAttributes) []string {
	seen := make(map[string]bool)
	types := make([]string, 0)

	add := func(names ...string) {
		for _, n := range names {
			key := strings.ToLower(n)
			if !seen[key] {
				seen[key] = true
				types = append(types, n)
			}
		}
	}

	add(objectClassAttr)
	if len(rm.idAttr) != 0 {
		add(rm.idAttr)
	}

	for _, m := range rm.mappers {
		if qa.IsRequested(m.Descriptor()) {
			add(m.LdapAttributeTypes()...)
		}
	}

	for _, d := range rm.derived {
		if qa.IsRequested(d.Descriptor()) {
			add(d.LdapAttributeTypes()...)
		}
	}

	return types
}

// Builds the add request for a new resource. Every required mapped
// attribute must be present, the DN comes from the configured template.
func (rm *ResourceMapper) ToLdapEntry(so *base.SCIMObject) (*ldap3.AddRequest, *base.ScimError) {
	if rm.dnConstructor == nil {
		return nil, base.NewInvalidResourceError(fmt.Sprintf("The %s resource does not support create", rm.ResourceName))
	}

	eb := NewEntryBuilder()
	if err := rm.stageMappedAttributes(so, eb, true); err != nil {
		return nil, err
	}

	rm.applyFixedAttributes(eb)

	dn, err := rm.dnConstructor.Construct(eb)
	if err != nil {
		return nil, err
	}

	return eb.ToAddRequest(dn), nil
}

func (rm *ResourceMapper) stageMappedAttributes(so *base.SCIMObject, eb *EntryBuilder, checkRequired bool) *base.ScimError {
	for _, m := range rm.mappers {
		atType := m.Descriptor()
		if checkRequired && atType.Required && !so.HasAttribute(atType.Schema, atType.NormName) {
			return base.NewInvalidResourceError(fmt.Sprintf("The required attribute %s is missing", atType.Name))
		}

		if err := m.ToLdap(so, eb); err != nil {
			return err
		}
	}

	return nil
}

func (rm *ResourceMapper) applyFixedAttributes(eb *EntryBuilder) {
	for _, fa := range rm.fixedAttributes {
		if !eb.Has(fa.LdapAttr) {
			eb.Add(fa.LdapAttr, fa.Values...)
			continue
		}

		switch strings.ToUpper(fa.OnConflict) {
		case MERGE:
			eb.Add(fa.LdapAttr, fa.Values...)

		case OVERWRITE:
			eb.Overwrite(fa.LdapAttr, fa.Values...)

		case PRESERVE:
			// the mapper values win
		}
	}
}

// Diffs the current entry against the LDAP form of the replacement
// resource, emitting the minimal modification list restricted to the
// attribute types owned by the mappers.
func (rm *ResourceMapper) ToLdapModifications(current *ldap3.Entry, so *base.SCIMObject) ([]ldap3.Change, *base.ScimError) {
	eb := NewEntryBuilder()
	if err := rm.stageMappedAttributes(so, eb, false); err != nil {
		return nil, err
	}

	changes := make([]ldap3.Change, 0)

	for _, m := range rm.mappers {
		for _, attrType := range m.LdapAttributeTypes() {
			curVals := attributeValues(current, attrType)
			newVals := eb.Values(attrType)

			switch {
			case len(curVals) == 0 && len(newVals) == 0:
				continue

			case len(curVals) == 0:
				changes = append(changes, ldap3.Change{
					Operation:    ldap3.AddAttribute,
					Modification: ldap3.PartialAttribute{Type: attrType, Vals: newVals},
				})

			case len(newVals) == 0:
				changes = append(changes, ldap3.Change{
					Operation:    ldap3.DeleteAttribute,
					Modification: ldap3.PartialAttribute{Type: attrType},
				})

			default:
				if !sameValues(curVals, newVals) {
					changes = append(changes, ldap3.Change{
						Operation:    ldap3.ReplaceAttribute,
						Modification: ldap3.PartialAttribute{Type: attrType, Vals: newVals},
					})
				}
			}
		}
	}

	return changes, nil
}

func attributeValues(entry *ldap3.Entry, name string) []string {
	for _, a := range entry.Attributes {
		if strings.EqualFold(a.Name, name) {
			return a.Values
		}
	}

	return nil
}

func sameValues(a []string, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	matched := make([]bool, len(b))
outer:
	for _, av := range a {
		for i, bv := range b {
			if !matched[i] && av == bv {
				matched[i] = true
				continue outer
			}
		}

		return false
	}

	return true
}

// Translates a SCIM filter into the LDAP filter to search with. The second
// return value reports whether the results must be re-filtered in memory,
// either because part of the filter could not be translated or because a
// GT/LT leaf was widened to >=/<=.
func (rm *ResourceMapper) ToLdapFilter(fn *base.FilterNode) (string, bool, *base.ScimError) {
	if fn == nil {
		return rm.searchFilterStr, false, nil
	}

	translated, full, err := rm.translateNode(fn)
	if err != nil {
		return "", false, err
	}

	lossy := !full || hasWidenedOp(fn)

	if len(translated) == 0 {
		// nothing translatable, fall back to the guard filter alone
		return rm.searchFilterStr, true, nil
	}

	if len(rm.searchFilterStr) == 0 {
		return translated, lossy, nil
	}

	return andJoin([]string{translated, rm.searchFilterStr}), lossy, nil
}

// Recursive filter translation. An AND keeps its translatable children and
// widens safely, an OR with any untranslatable child is dropped entirely
// because keeping the rest would narrow the result set.
func (rm *ResourceMapper) translateNode(fn *base.FilterNode) (string, bool, *base.ScimError) {
	switch fn.Op {
	case "AND":
		parts := make([]string, 0, len(fn.Children))
		full := true
		for _, ch := range fn.Children {
			s, f, err := rm.translateNode(ch)
			if err != nil {
				return "", false, err
			}

			if len(s) == 0 {
				full = false
				continue
			}

			full = full && f
			parts = append(parts, s)
		}

		if len(parts) == 0 {
			return "", false, nil
		}

		return andJoin(parts), full, nil

	case "OR":
		parts := make([]string, 0, len(fn.Children))
		for _, ch := range fn.Children {
			s, f, err := rm.translateNode(ch)
			if err != nil {
				return "", false, err
			}

			if len(s) == 0 || !f {
				log.Debugf("dropping the OR subtree of %s, a branch cannot be translated", fn)
				return "", false, nil
			}

			parts = append(parts, s)
		}

		return orJoin(parts), true, nil
	}

	m := rm.findMapper(fn)
	if m == nil {
		log.Debugf("no mapper for the filter path %s", fn.Name)
		return "", false, nil
	}

	s, err := m.ToLdapFilter(fn)
	if err != nil {
		return "", false, err
	}

	return s, len(s) != 0, nil
}

func hasWidenedOp(fn *base.FilterNode) bool {
	if fn.Op == "GT" || fn.Op == "LT" {
		return true
	}

	for _, ch := range fn.Children {
		if hasWidenedOp(ch) {
			return true
		}
	}

	return false
}

func (rm *ResourceMapper) findMapper(fn *base.FilterNode) AttributeMapper {
	for _, m := range rm.mappers {
		atType := m.Descriptor()
		if len(fn.Schema) != 0 && !schema.SameUrn(fn.Schema, atType.Schema) {
			continue
		}

		if atType.NormName == fn.AtName {
			return m
		}
	}

	return nil
}

// Builds the server-side-sort control for the requested sort order. Fails
// when the sort path does not resolve to a sortable mapping.
func (rm *ResourceMapper) ToSortControl(sp *base.SortParameters) (ldap3.Control, *base.ScimError) {
	var sortAttr string
	for _, m := range rm.mappers {
		atType := m.Descriptor()
		if len(sp.By.Schema) != 0 && !schema.SameUrn(sp.By.Schema, atType.Schema) {
			continue
		}

		if atType.NormName == sp.By.Name {
			sortAttr = m.SortAttribute(sp.By.SubName)
			break
		}
	}

	if len(sortAttr) == 0 {
		return nil, base.NewInvalidSortError(fmt.Sprintf("Cannot sort by the attribute %s", sp.By))
	}

	key := ldap3.SortKey{AttributeType: sortAttr, Reverse: !sp.Ascending}

	return ldap3.NewControlServerSideSortingWithSortKeys([]*ldap3.SortKey{&key}), nil
}

// Builds the SCIM resource for an LDAP entry. Entries outside the guard
// filter return nil, derived attributes run only when a client is supplied.
func (rm *ResourceMapper) ToScimObject(ctx context.Context, entry *ldap3.Entry, qa *base.QueryAttributes, client DirectoryClient) (*base.SCIMObject, error) {
	if rm.searchFilter != nil && !rm.searchFilter.Matches(entry) {
		return nil, nil
	}

	so := base.NewSCIMObject()

	if idAt := rm.rd.GetAttribute(rm.rd.Schema, "id"); idAt != nil {
		if id := rm.EntryId(entry); len(id) != 0 {
			so.Add(base.NewSingularAttribute(idAt, base.NewSimpleAttrValue(base.NewStringValue(id))))
		}
	}

	for _, m := range rm.mappers {
		if !qa.IsRequested(m.Descriptor()) {
			continue
		}

		sa, err := m.ToScim(entry)
		if err != nil {
			return nil, err
		}

		if sa != nil {
			so.Add(sa)
		}
	}

	if client != nil {
		for _, d := range rm.derived {
			if !qa.IsRequested(d.Descriptor()) {
				continue
			}

			sa, err := d.ToScim(ctx, entry, client, rm.searchBaseDN)
			if err != nil {
				return nil, err
			}

			if sa != nil {
				so.Add(sa)
			}
		}
	}

	return so, nil
}

// The SCIM id of the entry, the value of the id attribute when present or
// the value of the entry's first RDN.
func (rm *ResourceMapper) EntryId(entry *ldap3.Entry) string {
	idAttr := rm.idAttr
	if len(idAttr) == 0 {
		idAttr = "entryUUID"
	}

	if v := entry.GetEqualFoldAttributeValue(idAttr); len(v) != 0 {
		return v
	}

	dn, err := ldap3.ParseDN(entry.DN)
	if err != nil || len(dn.RDNs) == 0 || len(dn.RDNs[0].Attributes) == 0 {
		return ""
	}

	return dn.RDNs[0].Attributes[0].Value
}

// Reports whether an id can be turned into a DN directly, true only when
// the id attribute is the RDN attribute of the DN template.
func (rm *ResourceMapper) CanResolveIdToDn() bool {
	return rm.dnConstructor != nil && strings.EqualFold(rm.idAttr, rm.dnConstructor.FirstAttribute())
}

// The DN a resource id resolves to under this mapper's template, empty when
// the mapper cannot construct DNs or the template references attributes
// other than the id attribute.
func (rm *ResourceMapper) IdToDn(id string) string {
	if !rm.CanResolveIdToDn() {
		return ""
	}

	eb := NewEntryBuilder()
	eb.Add(rm.idAttr, id)
	dn, serr := rm.dnConstructor.Construct(eb)
	if serr != nil {
		return ""
	}

	return dn
}

// The LDAP filter matching the resource with the given id. Without a
// configured id attribute the entryUUID operational attribute serves as the
// identifier.
func (rm *ResourceMapper) IdFilter(id string) string {
	idAttr := rm.idAttr
	if len(idAttr) == 0 {
		idAttr = "entryUUID"
	}

	idFilter := "(" + idAttr + "=" + ldap3.EscapeFilter(id) + ")"
	if len(rm.searchFilterStr) == 0 {
		return idFilter
	}

	return andJoin([]string{idFilter, rm.searchFilterStr})
}

func (rm *ResourceMapper) Mappers() []AttributeMapper {
	return rm.mappers
}

func (rm *ResourceMapper) SearchFilterText() string {
	return rm.searchFilterStr
}

// Evaluates the guard filter against an entry, true when no guard is set.
func (rm *ResourceMapper) MatchesSearchFilter(entry *ldap3.Entry) bool {
	return rm.searchFilter == nil || rm.searchFilter.Matches(entry)
}
