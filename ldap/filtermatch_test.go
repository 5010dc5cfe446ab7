// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"testing"

	ldap3 "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLdapFilter(t *testing.T) {
	var filters = []struct {
		f    string
		pass bool
	}{
		{"(objectClass=inetOrgPerson)", true},
		{"(objectClass=*)", true},
		{"(uid=bj*sen*)", true},
		{"(&(objectClass=person)(uid=bjensen))", true},
		{"(|(mail=*@example.com)(mail=*@example.org))", true},
		{"(!(objectClass=device))", true},
		{"(createTimestamp>=20200101000000.000Z)", true},
		{"(uid<=m)", true},
		{"objectClass=person", false},
		{"(objectClass=person", false},
		{"(&)", false},
		{"(!(a=1)(b=2))", false},
		{"", false},
	}

	for _, f := range filters {
		parsed, err := ParseLdapFilter(f.f)
		if f.pass {
			require.NoError(t, err, f.f)
			require.NotNil(t, parsed)
		} else {
			assert.Error(t, err, f.f)
		}
	}
}

func TestLdapFilterMatches(t *testing.T) {
	entry := bjensenEntry()

	var cases = []struct {
		f     string
		match bool
	}{
		{"(objectClass=inetOrgPerson)", true},
		{"(objectclass=INETORGPERSON)", true}, // caseIgnoreMatch
		{"(objectClass=device)", false},
		{"(uid=bjensen)", true},
		{"(uid=*)", true},
		{"(pager=*)", false},
		{"(uid=bj*)", true},
		{"(uid=*sen)", true},
		{"(uid=b*en*n)", true},
		{"(uid=x*)", false},
		{"(mail=*@example.com)", true},
		{"(&(objectClass=person)(uid=bjensen))", true},
		{"(&(objectClass=person)(uid=other))", false},
		{"(|(uid=other)(uid=bjensen))", true},
		{"(!(uid=other))", true},
		{"(!(uid=bjensen))", false},
		{"(uid>=a)", true},
		{"(uid<=a)", false},
	}

	for _, c := range cases {
		f, err := ParseLdapFilter(c.f)
		require.NoError(t, err, c.f)

		assert.Equal(t, c.match, f.Matches(entry), "filter %s", c.f)
	}
}

func TestLdapFilterString(t *testing.T) {
	// parse then print must be stable so that guard filters embed verbatim
	for _, f := range []string{
		"(objectClass=inetOrgPerson)",
		"(&(objectClass=person)(uid=bjensen))",
		"(|(mail=*@example.com)(uid=bj*))",
		"(!(objectClass=device))",
		"(uid=*)",
	} {
		parsed, err := ParseLdapFilter(f)
		require.NoError(t, err)
		assert.Equal(t, f, parsed.String())
	}
}

func TestLdapFilterEscapes(t *testing.T) {
	entry := &ldap3.Entry{
		DN: "cn=a(b),dc=example,dc=com",
		Attributes: []*ldap3.EntryAttribute{
			ldap3.NewEntryAttribute("cn", []string{"a(b)"}),
		},
	}

	f, err := ParseLdapFilter("(cn=" + ldap3.EscapeFilter("a(b)") + ")")
	require.NoError(t, err)
	assert.True(t, f.Matches(entry))
}
