// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package schema

import (
	"testing"
)

const coreUrn = "urn:scim:schemas:core:1.0"

func buildUserDescriptor(t *testing.T) *ResourceDescriptor {
	rd := NewResourceDescriptor("User", "/Users", coreUrn)

	userName, err := SingularSimple("userName", StringType, "", coreUrn, false, true, false)
	if err != nil {
		t.Fatal(err)
	}

	family, _ := SingularSimple("familyName", StringType, "", coreUrn, false, false, false)
	given, _ := SingularSimple("givenName", StringType, "", coreUrn, false, false, false)
	name, err := SingularComplex("name", "", coreUrn, false, false, []*AttributeDescriptor{family, given})
	if err != nil {
		t.Fatal(err)
	}

	emails, err := PluralComplex("emails", "", coreUrn, false, false, []string{"work", "home"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	rd.AddAttribute(userName)
	rd.AddAttribute(name)
	rd.AddAttribute(emails)

	return rd
}

func TestDescriptorLookup(t *testing.T) {
	rd := buildUserDescriptor(t)

	var paths = []struct {
		path  string
		found bool
	}{
		{"userName", true},
		{"USERNAME", true},
		{"urn:scim:schemas:CORE:1.0:userName", true},
		{"name.familyName", true},
		{"name.FAMILYNAME", true},
		{"emails.value", true},
		{"emails.type", true},
		{"name.unknown", false},
		{"unknown", false},
	}

	for _, p := range paths {
		at := rd.GetAtType(p.path)
		if p.found && at == nil {
			t.Errorf("Expected to resolve the attribute path %s", p.path)
		}

		if !p.found && at != nil {
			t.Errorf("Expected the attribute path %s to be unresolvable", p.path)
		}
	}
}

func TestPluralDefaultSubAttrs(t *testing.T) {
	rd := buildUserDescriptor(t)

	emails := rd.GetAttribute(coreUrn, "emails")
	if emails == nil {
		t.Fatal("emails attribute not found")
	}

	for _, name := range []string{"value", "type", "primary", "display", "operation"} {
		if emails.SubAttribute(name) == nil {
			t.Errorf("plural attribute is missing the default sub-attribute %s", name)
		}
	}

	if emails.SubAttribute("primary").Type != BooleanType {
		t.Error("primary sub-attribute must be boolean")
	}

	if !emails.HasPluralType("Work") {
		t.Error("plural type match must be case insensitive")
	}
}

func TestInvalidDescriptors(t *testing.T) {
	if _, err := SingularSimple("bad name", StringType, "", coreUrn, false, false, false); err == nil {
		t.Error("attribute names cannot contain spaces")
	}

	if _, err := SingularComplex("name", "", coreUrn, false, false, nil); err == nil {
		t.Error("a complex attribute requires sub-attributes")
	}

	sub, _ := SingularSimple("familyName", StringType, "", coreUrn, false, false, false)
	dup, _ := SingularSimple("FAMILYNAME", StringType, "", coreUrn, false, false, false)
	if _, err := SingularComplex("name", "", coreUrn, false, false, []*AttributeDescriptor{sub, dup}); err == nil {
		t.Error("sub-attribute names must be unique case insensitively")
	}

	if _, err := ParseDataType("float"); err == nil {
		t.Error("float is not a valid data type")
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	rd := buildUserDescriptor(t)
	if err := reg.Add(rd); err != nil {
		t.Fatal(err)
	}

	if reg.Resource("/users") == nil {
		t.Error("endpoint lookup must be case insensitive")
	}

	if reg.Resource("Users") == nil {
		t.Error("endpoint lookup must tolerate a missing leading slash")
	}

	if reg.Descriptor("URN:scim:schemas:core:1.0", "username") == nil {
		t.Error("descriptor lookup must fold the case of both URN and name")
	}

	userName := rd.GetAttribute(coreUrn, "userName")
	if reg.SubDescriptor(userName, "anything") != nil {
		t.Error("simple attributes have no sub-descriptors")
	}

	if err := reg.Add(rd); err == nil {
		t.Error("duplicate endpoint registration must fail")
	}
}
