// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package marshal

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syunchanp/scimgate/base"
	"github.com/syunchanp/scimgate/schema"
)

const coreUrn = "urn:scim:schemas:core:1.0"

const entUrn = "urn:scim:schemas:extension:enterprise:1.0"

func userDescriptor(t *testing.T) *schema.ResourceDescriptor {
	t.Helper()

	rd := schema.NewResourceDescriptor("User", "/Users", coreUrn)

	id, _ := schema.SingularSimple("id", schema.StringType, "", coreUrn, true, false, true)
	userName, _ := schema.SingularSimple("userName", schema.StringType, "", coreUrn, false, true, false)
	active, _ := schema.SingularSimple("active", schema.BooleanType, "", coreUrn, false, false, false)
	loginCount, _ := schema.SingularSimple("loginCount", schema.IntegerType, "", coreUrn, false, false, false)
	lastLogin, _ := schema.SingularSimple("lastLogin", schema.DateTimeType, "", coreUrn, true, false, false)
	photo, _ := schema.SingularSimple("photo", schema.BinaryType, "", coreUrn, false, false, true)

	family, _ := schema.SingularSimple("familyName", schema.StringType, "", coreUrn, false, false, false)
	given, _ := schema.SingularSimple("givenName", schema.StringType, "", coreUrn, false, false, false)
	name, err := schema.SingularComplex("name", "", coreUrn, false, false, []*schema.AttributeDescriptor{family, given})
	require.NoError(t, err)

	emails, err := schema.PluralComplex("emails", "", coreUrn, false, false, []string{"work", "home"}, nil)
	require.NoError(t, err)

	empNum, _ := schema.SingularSimple("employeeNumber", schema.StringType, "", entUrn, false, false, false)

	for _, at := range []*schema.AttributeDescriptor{id, userName, active, loginCount, lastLogin, photo, name, emails, empNum} {
		require.NoError(t, rd.AddAttribute(at))
	}

	return rd
}

func fullUser(t *testing.T, rd *schema.ResourceDescriptor) *base.SCIMObject {
	t.Helper()

	so := base.NewSCIMObject()

	add := func(urn string, name string, sv base.SimpleValue) {
		at := rd.GetAttribute(urn, name)
		require.NotNil(t, at, name)
		so.Add(base.NewSingularAttribute(at, base.NewSimpleAttrValue(sv)))
	}

	lastLogin, _ := time.Parse(time.RFC3339, "2011-08-01T21:32:44Z")

	add(coreUrn, "id", base.NewStringValue("bjensen"))
	add(coreUrn, "userName", base.NewStringValue("bjensen"))
	add(coreUrn, "active", base.NewBooleanValue(true))
	add(coreUrn, "loginCount", base.NewIntegerValue(42))
	add(coreUrn, "lastLogin", base.NewDateTimeValue(lastLogin))
	add(coreUrn, "photo", base.NewBinaryValue([]byte("binary photo data")))
	add(entUrn, "employeeNumber", base.NewStringValue("7"))

	nameAt := rd.GetAttribute(coreUrn, "name")
	so.Add(base.NewSingularAttribute(nameAt, base.NewComplexValueOf(nameAt, map[string]base.SimpleValue{
		"familyName": base.NewStringValue("Jensen"),
		"givenName":  base.NewStringValue("Barbara"),
	})))

	emailsAt := rd.GetAttribute(coreUrn, "emails")
	work := base.NewComplexValueOf(emailsAt, map[string]base.SimpleValue{
		"value":   base.NewStringValue("bjensen@example.com"),
		"type":    base.NewStringValue("work"),
		"primary": base.NewBooleanValue(true),
	})
	home := base.NewComplexValueOf(emailsAt, map[string]base.SimpleValue{
		"value": base.NewStringValue("barbara@home.org"),
		"type":  base.NewStringValue("home"),
	})
	so.Add(base.NewPluralAttribute(emailsAt, work, home))

	return so
}

// the JSON GET scenario: id, userName and name.familyName only
func TestJsonGetUser(t *testing.T) {
	rd := userDescriptor(t)
	jm := &JsonMarshaller{}

	so := base.NewSCIMObject()

	idAt := rd.GetAttribute(coreUrn, "id")
	so.Add(base.NewSingularAttribute(idAt, base.NewSimpleAttrValue(base.NewStringValue("bjensen"))))

	userNameAt := rd.GetAttribute(coreUrn, "userName")
	so.Add(base.NewSingularAttribute(userNameAt, base.NewSimpleAttrValue(base.NewStringValue("bjensen"))))

	nameAt := rd.GetAttribute(coreUrn, "name")
	so.Add(base.NewSingularAttribute(nameAt, base.NewComplexValueOf(nameAt, map[string]base.SimpleValue{
		"familyName": base.NewStringValue("Jensen"),
	})))

	data, err := jm.Marshal(so, rd)
	require.NoError(t, err)

	expected := `{"schemas":["urn:scim:schemas:core:1.0"],"id":"bjensen","userName":"bjensen","name":{"familyName":"Jensen"}}`

	var got, want map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	require.NoError(t, json.Unmarshal([]byte(expected), &want))
	assert.Equal(t, want, got)
}

func TestJsonRoundTrip(t *testing.T) {
	rd := userDescriptor(t)
	jm := &JsonMarshaller{}

	so := fullUser(t, rd)

	data, err := jm.Marshal(so, rd)
	require.NoError(t, err)

	back, err := jm.Unmarshal(data, rd)
	require.NoError(t, err)

	assert.True(t, so.EqualsIgnoringOrder(back), "JSON round trip changed the resource:\n%s", data)
}

func TestXmlRoundTrip(t *testing.T) {
	rd := userDescriptor(t)
	xm := &XmlMarshaller{}

	so := fullUser(t, rd)

	data, err := xm.Marshal(so, rd)
	require.NoError(t, err)

	back, err := xm.Unmarshal(data, rd)
	require.NoError(t, err)

	assert.True(t, so.EqualsIgnoringOrder(back), "XML round trip changed the resource:\n%s", data)
}

// the XML POST payload of the create scenario parses into userName and
// name.familyName
func TestXmlPostUser(t *testing.T) {
	rd := userDescriptor(t)
	xm := &XmlMarshaller{}

	payload := `<User xmlns="urn:scim:schemas:core:1.0"><userName>alice</userName><name><familyName>Doe</familyName></name></User>`

	so, err := xm.Unmarshal([]byte(payload), rd)
	require.NoError(t, err)

	userName := so.Get(coreUrn, "userName")
	require.NotNil(t, userName)
	assert.Equal(t, "alice", userName.GetSingularValue().Simple.GetStringVal())

	name := so.Get(coreUrn, "name")
	require.NotNil(t, name)

	family, ok := name.GetSingularValue().SubValue("familyName")
	require.True(t, ok)
	assert.Equal(t, "Doe", family.GetStringVal())
}

func TestXmlPluralElementOrder(t *testing.T) {
	rd := userDescriptor(t)
	xm := &XmlMarshaller{}

	so := fullUser(t, rd)

	data, err := xm.Marshal(so, rd)
	require.NoError(t, err)

	s := string(data)
	vPos := strings.Index(s, "<value>bjensen@example.com</value>")
	tPos := strings.Index(s, "<type>work</type>")
	pPos := strings.Index(s, "<primary>true</primary>")

	require.True(t, vPos >= 0 && tPos >= 0 && pPos >= 0, "plural element content missing:\n%s", s)
	assert.True(t, vPos < tPos && tPos < pPos, "plural sub-attributes out of order:\n%s", s)
}

func TestUnknownAttributesIgnored(t *testing.T) {
	rd := userDescriptor(t)

	jm := &JsonMarshaller{}
	so, err := jm.Unmarshal([]byte(`{"schemas":["urn:scim:schemas:core:1.0"],"userName":"alice","favoriteColor":"blue"}`), rd)
	require.NoError(t, err)
	require.NotNil(t, so.Get(coreUrn, "userName"))

	xm := &XmlMarshaller{}
	so, err = xm.Unmarshal([]byte(`<User xmlns="urn:scim:schemas:core:1.0"><userName>alice</userName><favoriteColor>blue</favoriteColor></User>`), rd)
	require.NoError(t, err)
	require.NotNil(t, so.Get(coreUrn, "userName"))
}

func TestMalformedValues(t *testing.T) {
	rd := userDescriptor(t)
	jm := &JsonMarshaller{}

	var bad = []string{
		`{"loginCount":"many"}`,
		`{"loginCount":1.5}`,
		`{"active":"maybe"}`,
		`{"lastLogin":"June first"}`,
		`{"photo":"not base64!!"}`,
	}

	for _, payload := range bad {
		_, err := jm.Unmarshal([]byte(payload), rd)
		require.Error(t, err, payload)

		se, ok := err.(*base.ScimError)
		require.True(t, ok, payload)
		assert.Equal(t, 400, se.Code(), payload)
	}

	// structurally broken payloads are invalid resources
	_, err := jm.Unmarshal([]byte(`{"userName":`), rd)
	require.Error(t, err)
}

// the error round-trip scenario
func TestXmlErrorRoundTrip(t *testing.T) {
	xm := &XmlMarshaller{}

	payload := `<Error><code>404</code><description>User not found</description></Error>`

	se, err := xm.UnmarshalError([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, 404, se.Code())
	assert.Equal(t, "User not found", se.Detail)

	out := string(xm.MarshalError(se))
	assert.Equal(t, payload, strings.TrimSpace(out))
}

func TestJsonErrorRoundTrip(t *testing.T) {
	jm := &JsonMarshaller{}

	se := base.NewNotFoundError("User not found")
	data := jm.MarshalError(se)

	back, err := jm.UnmarshalError(data)
	require.NoError(t, err)
	assert.Equal(t, 404, back.Code())
	assert.Equal(t, "User not found", back.Detail)
}

func TestListEnvelopeRoundTrip(t *testing.T) {
	rd := userDescriptor(t)

	lr := &ListResponse{TotalResults: 2, StartIndex: 1}
	lr.Resources = []*base.SCIMObject{fullUser(t, rd), fullUser(t, rd)}

	for _, m := range []Marshaller{&JsonMarshaller{}, &XmlMarshaller{}} {
		data, err := m.MarshalList(lr, rd)
		require.NoError(t, err)

		back, err := m.UnmarshalList(data, rd)
		require.NoError(t, err)

		assert.Equal(t, 2, back.TotalResults)
		assert.Equal(t, 1, back.StartIndex)
		require.Len(t, back.Resources, 2)
		assert.True(t, lr.Resources[0].EqualsIgnoringOrder(back.Resources[0]))
	}
}

func TestListEnvelopeDefaults(t *testing.T) {
	rd := userDescriptor(t)
	jm := &JsonMarshaller{}

	lr, err := jm.UnmarshalList([]byte(`{"Resources":[{"userName":"alice"},{"userName":"bob"}]}`), rd)
	require.NoError(t, err)
	assert.Equal(t, 2, lr.TotalResults)
	assert.Equal(t, 1, lr.StartIndex)
}
