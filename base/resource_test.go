// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package base

import (
	"testing"
	"time"

	"github.com/syunchanp/scimgate/schema"
)

const coreUrn = "urn:scim:schemas:core:1.0"

const entUrn = "urn:scim:schemas:extension:enterprise:1.0"

// builds the descriptor of a User resource used across the tests of this
// package
func userDescriptor(t *testing.T) *schema.ResourceDescriptor {
	t.Helper()

	rd := schema.NewResourceDescriptor("User", "/Users", coreUrn)

	id, _ := schema.SingularSimple("id", schema.StringType, "", coreUrn, true, false, true)
	userName, _ := schema.SingularSimple("userName", schema.StringType, "", coreUrn, false, true, false)
	active, _ := schema.SingularSimple("active", schema.BooleanType, "", coreUrn, false, false, false)
	loginCount, _ := schema.SingularSimple("loginCount", schema.IntegerType, "", coreUrn, false, false, false)
	photo, _ := schema.SingularSimple("photo", schema.BinaryType, "", coreUrn, false, false, true)

	family, _ := schema.SingularSimple("familyName", schema.StringType, "", coreUrn, false, false, false)
	given, _ := schema.SingularSimple("givenName", schema.StringType, "", coreUrn, false, false, false)
	name, err := schema.SingularComplex("name", "", coreUrn, false, false, []*schema.AttributeDescriptor{family, given})
	if err != nil {
		t.Fatal(err)
	}

	emails, err := schema.PluralComplex("emails", "", coreUrn, false, false, []string{"work", "home"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	created, _ := schema.SingularSimple("created", schema.DateTimeType, "", coreUrn, true, false, false)
	lastMod, _ := schema.SingularSimple("lastModified", schema.DateTimeType, "", coreUrn, true, false, false)
	meta, err := schema.SingularComplex("meta", "", coreUrn, true, false, []*schema.AttributeDescriptor{created, lastMod})
	if err != nil {
		t.Fatal(err)
	}

	empNum, _ := schema.SingularSimple("employeeNumber", schema.StringType, "", entUrn, false, false, false)

	for _, at := range []*schema.AttributeDescriptor{id, userName, active, loginCount, photo, name, emails, meta, empNum} {
		if err := rd.AddAttribute(at); err != nil {
			t.Fatal(err)
		}
	}

	return rd
}

// builds bjensen with every attribute kind exercised
func bjensen(t *testing.T, rd *schema.ResourceDescriptor) *SCIMObject {
	t.Helper()

	so := NewSCIMObject()

	add := func(name string, sv SimpleValue) {
		at := rd.GetAttribute(coreUrn, name)
		if at == nil {
			at = rd.GetAttribute(entUrn, name)
		}
		if at == nil {
			t.Fatalf("no descriptor for %s", name)
		}

		so.Add(NewSingularAttribute(at, NewSimpleAttrValue(sv)))
	}

	add("id", NewStringValue("bjensen"))
	add("userName", NewStringValue("bjensen"))
	add("active", NewBooleanValue(true))
	add("loginCount", NewIntegerValue(42))
	add("employeeNumber", NewStringValue("7"))

	nameAt := rd.GetAttribute(coreUrn, "name")
	nameVal := NewComplexValueOf(nameAt, map[string]SimpleValue{
		"familyName": NewStringValue("Jensen"),
		"givenName":  NewStringValue("Barbara"),
	})
	so.Add(NewSingularAttribute(nameAt, nameVal))

	emailsAt := rd.GetAttribute(coreUrn, "emails")
	work := NewComplexValueOf(emailsAt, map[string]SimpleValue{
		"value": NewStringValue("bjensen@example.com"),
		"type":  NewStringValue("work"),
	})
	home := NewComplexValueOf(emailsAt, map[string]SimpleValue{
		"value": NewStringValue("barbara@home.org"),
		"type":  NewStringValue("home"),
	})
	so.Add(NewPluralAttribute(emailsAt, work, home))

	metaAt := rd.GetAttribute(coreUrn, "meta")
	lastMod, _ := time.Parse(time.RFC3339, "2021-06-01T10:00:00Z")
	metaVal := NewComplexValueOf(metaAt, map[string]SimpleValue{
		"lastModified": NewDateTimeValue(lastMod),
	})
	so.Add(NewSingularAttribute(metaAt, metaVal))

	return so
}

func TestObjectKeying(t *testing.T) {
	rd := userDescriptor(t)
	so := bjensen(t, rd)

	if so.Get("URN:SCIM:SCHEMAS:CORE:1.0", "USERNAME") == nil {
		t.Error("attribute lookup must fold the case of URN and name")
	}

	if so.Get(coreUrn, "nosuch") != nil {
		t.Error("unknown attribute must return nil")
	}

	// Add replaces the attribute under the same key
	userName := rd.GetAttribute(coreUrn, "userName")
	so.Add(NewSingularAttribute(userName, NewSimpleAttrValue(NewStringValue("replaced"))))
	if got := so.Get(coreUrn, "userName").GetSingularValue().Simple.GetStringVal(); got != "replaced" {
		t.Errorf("Add must replace, found %s", got)
	}
}

func TestSchemasEnumeration(t *testing.T) {
	rd := userDescriptor(t)
	so := bjensen(t, rd)

	urns := so.Schemas()
	if len(urns) != 2 {
		t.Fatalf("expected 2 schema URNs, found %d", len(urns))
	}

	// sorted: core before extension
	if urns[0] != coreUrn || urns[1] != entUrn {
		t.Errorf("wrong URN enumeration %v", urns)
	}

	so.Remove(entUrn, "employeeNumber")
	if len(so.Schemas()) != 1 {
		t.Error("removing the last attribute of a schema must drop the URN")
	}
}

func TestEqualsIgnoringPluralOrder(t *testing.T) {
	rd := userDescriptor(t)

	a := bjensen(t, rd)
	b := bjensen(t, rd)

	// flip the order of the email elements on b
	emails := b.Get(coreUrn, "emails")
	emails.Values[0], emails.Values[1] = emails.Values[1], emails.Values[0]

	if !a.EqualsIgnoringOrder(b) {
		t.Error("plural value order must not affect equality")
	}

	// now change a value
	ev := emails.Values[0]
	ev.SetSubAttr(NewSingularAttribute(rd.GetAtType("emails.value"), NewSimpleAttrValue(NewStringValue("other@example.com"))))
	if a.EqualsIgnoringOrder(b) {
		t.Error("a differing plural element value must break equality")
	}
}

func TestParseValue(t *testing.T) {
	rd := userDescriptor(t)

	var cases = []struct {
		atName string
		val    string
		pass   bool
	}{
		{"active", "TRUE", true},
		{"active", "yes", false},
		{"loginCount", "17", true},
		{"loginCount", "17.5", false},
		{"meta.lastModified", "2021-06-01T10:00:00Z", true},
		{"meta.lastModified", "2021-06-01T10:00:00.123Z", true},
		{"meta.lastModified", "June first", false},
		{"photo", "aGVsbG8=", true},
		{"photo", "not base64 at all!!", false},
		{"userName", "anything goes", true},
	}

	for _, c := range cases {
		at := rd.GetAtType(c.atName)
		if at == nil {
			t.Fatalf("no descriptor for %s", c.atName)
		}

		sv, err := ParseValue(at, c.val)
		if c.pass && err != nil {
			t.Errorf("failed to parse valid value %s for %s [%v]", c.val, c.atName, err)
		}

		if !c.pass {
			if err == nil {
				t.Errorf("expected parsing of %s for %s to fail", c.val, c.atName)
			} else if err.ScimType != ST_INVALIDVALUE {
				t.Errorf("expected an invalidValue error for %s", c.val)
			}

			continue
		}

		// the canonical form must parse back to an equal value
		back, err := ParseValue(at, sv.String())
		if err != nil {
			t.Errorf("canonical form %s of %s did not parse back [%v]", sv.String(), c.val, err)
		} else if !sv.Equals(back, at) {
			t.Errorf("value %s did not round-trip through its canonical form", c.val)
		}
	}
}
