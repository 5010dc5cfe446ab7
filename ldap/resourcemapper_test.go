// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"context"
	"strings"
	"testing"

	ldap3 "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syunchanp/scimgate/base"
)

// the XML POST scenario: a new alice resource maps to an add request with
// the templated DN, mapped attributes and the fixed objectClass values
func TestToLdapEntry(t *testing.T) {
	fx := newUserFixture(t)

	so := base.NewSCIMObject()

	userNameAt := fx.rd.GetAttribute(coreUrn, "userName")
	so.Add(base.NewSingularAttribute(userNameAt, base.NewSimpleAttrValue(base.NewStringValue("alice"))))

	nameAt := fx.rd.GetAttribute(coreUrn, "name")
	so.Add(base.NewSingularAttribute(nameAt, base.NewComplexValueOf(nameAt, map[string]base.SimpleValue{
		"familyName": base.NewStringValue("Doe"),
	})))

	req, serr := fx.rm.ToLdapEntry(so)
	require.Nil(t, serr)

	assert.Equal(t, "uid=alice,ou=People,dc=example,dc=com", req.DN)

	attrs := make(map[string][]string)
	for _, a := range req.Attributes {
		attrs[strings.ToLower(a.Type)] = a.Vals
	}

	assert.Equal(t, []string{"alice"}, attrs["uid"])
	assert.Equal(t, []string{"Doe"}, attrs["sn"])
	assert.Equal(t, []string{"top", "person", "organizationalPerson", "inetOrgPerson"}, attrs["objectclass"])
}

func TestToLdapEntryRequiredAttribute(t *testing.T) {
	fx := newUserFixture(t)

	// userName is required and absent
	so := base.NewSCIMObject()
	_, serr := fx.rm.ToLdapEntry(so)
	require.NotNil(t, serr)
	assert.Equal(t, 400, serr.Code())
}

func TestToLdapEntryUnresolvableTemplate(t *testing.T) {
	fx := newUserFixture(t)

	rm, err := NewResourceMapper(ResourceMapperParams{
		ResourceDescriptor: fx.rd,
		SearchBaseDN:       "ou=People,dc=example,dc=com",
		DnTemplate:         "cn={cn},ou=People,dc=example,dc=com",
		Mappers:            []AttributeMapper{fx.userName},
	})
	require.NoError(t, err)

	so := base.NewSCIMObject()
	userNameAt := fx.rd.GetAttribute(coreUrn, "userName")
	so.Add(base.NewSingularAttribute(userNameAt, base.NewSimpleAttrValue(base.NewStringValue("alice"))))

	// no mapper stages cn, the template cannot be expanded
	_, serr := rm.ToLdapEntry(so)
	require.NotNil(t, serr)
	assert.Equal(t, 400, serr.Code())
}

// the filter translation scenario:
// userName eq "bjensen" and emails.value co "example"
func TestToLdapFilterFull(t *testing.T) {
	fx := newUserFixture(t)

	fn := parseScimFilter(t, fx, `userName eq "bjensen" and emails.value co "example"`)
	got, lossy, serr := fx.rm.ToLdapFilter(fn)
	require.Nil(t, serr)
	assert.False(t, lossy)
	assert.Equal(t, `(&(&(uid=bjensen)(mail=*example*))(objectClass=inetOrgPerson))`, got)
}

// the partial translation scenario: a leaf with no mapper falls back to the
// guard filter and flags the in-memory post-filter
func TestToLdapFilterPartial(t *testing.T) {
	fx := newUserFixture(t)

	fn := parseScimFilter(t, fx, `meta.lastModified gt "2020-01-01T00:00:00Z"`)
	got, lossy, serr := fx.rm.ToLdapFilter(fn)
	require.Nil(t, serr)
	assert.True(t, lossy)
	assert.Equal(t, "(objectClass=inetOrgPerson)", got)
}

func TestToLdapFilterOrSemantics(t *testing.T) {
	fx := newUserFixture(t)

	// an OR with an untranslatable branch cannot keep the other branch, the
	// whole subtree widens to the guard filter
	fn := parseScimFilter(t, fx, `userName eq "bjensen" or meta.lastModified gt "2020-01-01T00:00:00Z"`)
	got, lossy, serr := fx.rm.ToLdapFilter(fn)
	require.Nil(t, serr)
	assert.True(t, lossy)
	assert.Equal(t, "(objectClass=inetOrgPerson)", got)

	// an AND keeps its translatable children
	fn = parseScimFilter(t, fx, `userName eq "bjensen" and meta.lastModified gt "2020-01-01T00:00:00Z"`)
	got, lossy, serr = fx.rm.ToLdapFilter(fn)
	require.Nil(t, serr)
	assert.True(t, lossy)
	assert.Equal(t, "(&(uid=bjensen)(objectClass=inetOrgPerson))", got)

	// a fully translatable OR stays an OR
	fn = parseScimFilter(t, fx, `userName eq "a" or userName eq "b"`)
	got, lossy, serr = fx.rm.ToLdapFilter(fn)
	require.Nil(t, serr)
	assert.False(t, lossy)
	assert.Equal(t, "(&(|(uid=a)(uid=b))(objectClass=inetOrgPerson))", got)
}

// GT and LT widen to >= and <= and flag the post-filter
func TestToLdapFilterWidening(t *testing.T) {
	fx := newUserFixture(t)

	fn := parseScimFilter(t, fx, `userName gt "b"`)
	got, lossy, serr := fx.rm.ToLdapFilter(fn)
	require.Nil(t, serr)
	assert.True(t, lossy)
	assert.Equal(t, "(&(uid>=b)(objectClass=inetOrgPerson))", got)

	fn = parseScimFilter(t, fx, `userName ge "b"`)
	_, lossy, serr = fx.rm.ToLdapFilter(fn)
	require.Nil(t, serr)
	assert.False(t, lossy)
}

// the diff scenario: replacing the work email emits a single replace of
// mail and touches nothing else
func TestToLdapModifications(t *testing.T) {
	fx := newUserFixture(t)

	current := &ldap3.Entry{
		DN: "uid=bjensen,ou=People,dc=example,dc=com",
		Attributes: []*ldap3.EntryAttribute{
			ldap3.NewEntryAttribute("uid", []string{"bjensen"}),
			ldap3.NewEntryAttribute("sn", []string{"Jensen"}),
			ldap3.NewEntryAttribute("mail", []string{"old@x.com"}),
			ldap3.NewEntryAttribute("description", []string{"untouched"}),
		},
	}

	so := base.NewSCIMObject()

	userNameAt := fx.rd.GetAttribute(coreUrn, "userName")
	so.Add(base.NewSingularAttribute(userNameAt, base.NewSimpleAttrValue(base.NewStringValue("bjensen"))))

	nameAt := fx.rd.GetAttribute(coreUrn, "name")
	so.Add(base.NewSingularAttribute(nameAt, base.NewComplexValueOf(nameAt, map[string]base.SimpleValue{
		"familyName": base.NewStringValue("Jensen"),
	})))

	emailsAt := fx.rd.GetAttribute(coreUrn, "emails")
	so.Add(base.NewPluralAttribute(emailsAt, base.NewComplexValueOf(emailsAt, map[string]base.SimpleValue{
		"value": base.NewStringValue("new@x.com"),
		"type":  base.NewStringValue("work"),
	})))

	changes, serr := fx.rm.ToLdapModifications(current, so)
	require.Nil(t, serr)
	require.Len(t, changes, 1)

	assert.Equal(t, uint(ldap3.ReplaceAttribute), changes[0].Operation)
	assert.Equal(t, "mail", changes[0].Modification.Type)
	assert.Equal(t, []string{"new@x.com"}, changes[0].Modification.Vals)
}

func TestToLdapModificationsAddAndDelete(t *testing.T) {
	fx := newUserFixture(t)

	current := &ldap3.Entry{
		DN: "uid=bjensen,ou=People,dc=example,dc=com",
		Attributes: []*ldap3.EntryAttribute{
			ldap3.NewEntryAttribute("uid", []string{"bjensen"}),
			ldap3.NewEntryAttribute("mail", []string{"old@x.com"}),
		},
	}

	so := base.NewSCIMObject()

	userNameAt := fx.rd.GetAttribute(coreUrn, "userName")
	so.Add(base.NewSingularAttribute(userNameAt, base.NewSimpleAttrValue(base.NewStringValue("bjensen"))))

	nameAt := fx.rd.GetAttribute(coreUrn, "name")
	so.Add(base.NewSingularAttribute(nameAt, base.NewComplexValueOf(nameAt, map[string]base.SimpleValue{
		"familyName": base.NewStringValue("Jensen"),
	})))

	changes, serr := fx.rm.ToLdapModifications(current, so)
	require.Nil(t, serr)
	require.Len(t, changes, 2)

	byType := make(map[string]ldap3.Change)
	for _, ch := range changes {
		byType[ch.Modification.Type] = ch
	}

	assert.Equal(t, uint(ldap3.AddAttribute), byType["sn"].Operation)
	assert.Equal(t, []string{"Jensen"}, byType["sn"].Modification.Vals)
	assert.Equal(t, uint(ldap3.DeleteAttribute), byType["mail"].Operation)
}

// requesting more attributes never shrinks the LDAP attribute set
func TestLdapAttributeTypesMonotone(t *testing.T) {
	fx := newUserFixture(t)

	small := fx.rm.LdapAttributeTypes(base.NewQueryAttributes("userName"))
	larger := fx.rm.LdapAttributeTypes(base.NewQueryAttributes("userName,emails"))
	all := fx.rm.LdapAttributeTypes(base.NewQueryAttributes(""))

	contains := func(list []string, name string) bool {
		for _, v := range list {
			if strings.EqualFold(v, name) {
				return true
			}
		}

		return false
	}

	for _, v := range small {
		assert.True(t, contains(larger, v), "attribute %s disappeared", v)
	}

	for _, v := range larger {
		assert.True(t, contains(all, v), "attribute %s disappeared", v)
	}

	assert.True(t, contains(small, "objectClass"))
	assert.True(t, contains(small, "uid"))
	assert.False(t, contains(small, "mail"))
	assert.True(t, contains(larger, "mail"))
}

func TestToSortControl(t *testing.T) {
	fx := newUserFixture(t)

	sp, serr := base.NewSortParameters("userName", "descending")
	require.Nil(t, serr)

	control, serr := fx.rm.ToSortControl(sp)
	require.Nil(t, serr)
	require.NotNil(t, control)
	assert.Equal(t, ldap3.ControlTypeServerSideSorting, control.GetControlType())

	_, serr = fx.rm.ToSortControl(&base.SortParameters{By: base.ParseAttributePath("unknown"), Ascending: true})
	require.NotNil(t, serr)
	assert.Equal(t, 400, serr.Code())
}

func TestToScimObjectGuard(t *testing.T) {
	fx := newUserFixture(t)

	qa := base.NewQueryAttributes("")

	so, err := fx.rm.ToScimObject(context.Background(), bjensenEntry(), qa, nil)
	require.NoError(t, err)
	require.NotNil(t, so)

	id := so.Get(coreUrn, "id")
	require.NotNil(t, id)
	assert.Equal(t, "bjensen", id.GetSingularValue().Simple.GetStringVal())

	// an entry outside the guard filter is hidden
	outside := &ldap3.Entry{
		DN: "cn=printer,ou=Devices,dc=example,dc=com",
		Attributes: []*ldap3.EntryAttribute{
			ldap3.NewEntryAttribute("objectClass", []string{"device"}),
			ldap3.NewEntryAttribute("cn", []string{"printer"}),
		},
	}

	so, err = fx.rm.ToScimObject(context.Background(), outside, qa, nil)
	require.NoError(t, err)
	assert.Nil(t, so)
}

// every entry matching a fully translated filter satisfies the in-memory
// evaluation of the original SCIM filter
func TestFullTranslationSoundness(t *testing.T) {
	fx := newUserFixture(t)

	fn := parseScimFilter(t, fx, `userName eq "BJENSEN" and emails.value co "EXAMPLE"`)

	ldapStr, lossy, serr := fx.rm.ToLdapFilter(fn)
	require.Nil(t, serr)
	require.False(t, lossy)

	lf, err := ParseLdapFilter(ldapStr)
	require.NoError(t, err)

	entry := bjensenEntry()
	require.True(t, lf.Matches(entry))

	so, err := fx.rm.ToScimObject(context.Background(), entry, base.NewQueryAttributes(""), nil)
	require.NoError(t, err)
	assert.True(t, base.BuildEvaluator(fn).Evaluate(so))
}
