// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package base

import (
	"testing"
)

func TestAttributePathParsing(t *testing.T) {
	var cases = []struct {
		path    string
		schema  string
		name    string
		subName string
	}{
		{"userName", "", "username", ""},
		{"name.familyName", "", "name", "familyname"},
		{"urn:scim:schemas:core:1.0:userName", "urn:scim:schemas:core:1.0", "username", ""},
		{"urn:scim:schemas:core:1.0:name.familyName", "urn:scim:schemas:core:1.0", "name", "familyname"},
	}

	for _, c := range cases {
		ap := ParseAttributePath(c.path)
		if ap.Schema != c.schema || ap.Name != c.name || ap.SubName != c.subName {
			t.Errorf("wrong parse of %s: %+v", c.path, ap)
		}
	}
}

func TestSortParameters(t *testing.T) {
	sp, err := NewSortParameters("userName", "")
	if err != nil || !sp.Ascending {
		t.Error("the default sort order is ascending")
	}

	sp, err = NewSortParameters("userName", "descending")
	if err != nil || sp.Ascending {
		t.Error("descending order was not honored")
	}

	if _, err = NewSortParameters("userName", "upwards"); err == nil {
		t.Error("an unknown sortOrder must be rejected")
	}

	if _, err = NewSortParameters("  ", "ascending"); err == nil {
		t.Error("an empty sortBy must be rejected")
	}
}

func TestPageParameters(t *testing.T) {
	pp := NewPageParameters(0, -5)
	if pp.StartIndex != 1 || pp.Count != 0 {
		t.Errorf("page parameters were not normalized: %+v", pp)
	}
}

func TestQueryAttributesRequested(t *testing.T) {
	rd := userDescriptor(t)

	qa := NewQueryAttributes("")
	if !qa.All() || !qa.IsRequested(rd.GetAttribute(coreUrn, "userName")) {
		t.Error("an empty set requests everything")
	}

	qa = NewQueryAttributes("userName,name.familyName")
	if !qa.IsRequested(rd.GetAttribute(coreUrn, "userName")) {
		t.Error("userName was requested")
	}

	if !qa.IsRequested(rd.GetAttribute(coreUrn, "name")) {
		t.Error("a sub-attribute path requests the parent")
	}

	if qa.IsRequested(rd.GetAttribute(coreUrn, "emails")) {
		t.Error("emails was not requested")
	}
}

func TestQueryAttributesPare(t *testing.T) {
	rd := userDescriptor(t)
	so := bjensen(t, rd)

	qa := NewQueryAttributes("userName,name.familyName")
	qa.AlwaysInclude(coreUrn, "id")
	qa.Pare(so)

	if so.Get(coreUrn, "userName") == nil || so.Get(coreUrn, "id") == nil {
		t.Error("requested attributes were dropped")
	}

	if so.Get(coreUrn, "emails") != nil || so.Get(coreUrn, "meta") != nil {
		t.Error("unrequested attributes were kept")
	}

	name := so.Get(coreUrn, "name")
	if name == nil {
		t.Fatal("name was requested via its sub-attribute")
	}

	nv := name.GetSingularValue()
	if nv.SubAttr("familyName") == nil {
		t.Error("the requested sub-attribute was dropped")
	}

	if nv.SubAttr("givenName") != nil {
		t.Error("an unrequested sub-attribute was kept")
	}
}
