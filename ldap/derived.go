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

// A derived attribute is computed from the entry and, when needed,
// secondary directory lookups instead of a direct mapping. Implementations
// register a factory under a short name, the mapping configuration
// references that name.
type DerivedAttribute interface {
	// Called once at configuration load with the descriptor the derivation
	// is bound to.
	Initialize(atType *schema.AttributeDescriptor)

	Descriptor() *schema.AttributeDescriptor

	// The LDAP attribute types of the primary entry this derivation reads,
	// requested on the primary search.
	LdapAttributeTypes() []string

	// Computes the attribute, nil when it has no value for this entry.
	ToScim(ctx context.Context, entry *ldap3.Entry, client DirectoryClient, searchBaseDN string) (*base.SCIMAttribute, error)
}

var derivationRegistry = make(map[string]func() DerivedAttribute)

func RegisterDerivation(name string, factory func() DerivedAttribute) {
	derivationRegistry[strings.ToLower(name)] = factory
}

// Instantiates the derivation registered under the given name. Unknown
// names fail the configuration load.
func NewDerivedAttribute(name string) (DerivedAttribute, error) {
	factory, ok := derivationRegistry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("No derived attribute registered under the name %s", name)
	}

	return factory(), nil
}

func init() {
	RegisterDerivation("groupMembers", func() DerivedAttribute { return &groupMembersDerivation{} })
	RegisterDerivation("entryMeta", func() DerivedAttribute { return &entryMetaDerivation{} })
}

// groupMembersDerivation computes the groups a user entry belongs to by a
// secondary search for group entries naming the user's DN as a member.
type groupMembersDerivation struct {
	atType *schema.AttributeDescriptor
}

func (d *groupMembersDerivation) Initialize(atType *schema.AttributeDescriptor) {
	d.atType = atType
}

func (d *groupMembersDerivation) Descriptor() *schema.AttributeDescriptor {
	return d.atType
}

func (d *groupMembersDerivation) LdapAttributeTypes() []string {
	// only the DN of the primary entry is consumed
	return nil
}

func (d *groupMembersDerivation) ToScim(ctx context.Context, entry *ldap3.Entry, client DirectoryClient, searchBaseDN string) (*base.SCIMAttribute, error) {
	dn := ldap3.EscapeFilter(entry.DN)
	filter := "(|(member=" + dn + ")(uniqueMember=" + dn + "))"

	groups, err := client.Search(ctx, searchBaseDN, ldap3.ScopeWholeSubtree, filter, []string{"cn"}, nil)
	if err != nil {
		return nil, MapDirectoryError(err)
	}

	if len(groups) == 0 {
		return nil, nil
	}

	valueAt := d.atType.SubAttribute("value")
	displayAt := d.atType.SubAttribute("display")

	elements := make([]*base.AttributeValue, 0, len(groups))
	for _, g := range groups {
		av := base.NewComplexAttrValue()
		av.SetSubAttr(base.NewSingularAttribute(valueAt, base.NewSimpleAttrValue(base.NewStringValue(g.DN))))
		if cn := g.GetAttributeValue("cn"); len(cn) != 0 && displayAt != nil {
			av.SetSubAttr(base.NewSingularAttribute(displayAt, base.NewSimpleAttrValue(base.NewStringValue(cn))))
		}

		elements = append(elements, av)
	}

	return base.NewPluralAttribute(d.atType, elements...), nil
}

// entryMetaDerivation maps the createTimestamp and modifyTimestamp
// operational attributes of the entry into the meta complex attribute.
type entryMetaDerivation struct {
	atType *schema.AttributeDescriptor
}

func (d *entryMetaDerivation) Initialize(atType *schema.AttributeDescriptor) {
	d.atType = atType
}

func (d *entryMetaDerivation) Descriptor() *schema.AttributeDescriptor {
	return d.atType
}

func (d *entryMetaDerivation) LdapAttributeTypes() []string {
	return []string{"createTimestamp", "modifyTimestamp"}
}

func (d *entryMetaDerivation) ToScim(ctx context.Context, entry *ldap3.Entry, client DirectoryClient, searchBaseDN string) (*base.SCIMAttribute, error) {
	gt := &generalizedTimeTransformation{}
	av := base.NewComplexAttrValue()
	present := false

	set := func(subName string, ldapAttr string) *base.ScimError {
		subAt := d.atType.SubAttribute(subName)
		if subAt == nil {
			return nil
		}

		raw := rawAttributeValues(entry, ldapAttr)
		if len(raw) == 0 {
			return nil
		}

		sv, err := gt.ToScimValue(subAt, raw[0])
		if err != nil {
			return err
		}

		av.SetSubAttr(base.NewSingularAttribute(subAt, base.NewSimpleAttrValue(sv)))
		present = true

		return nil
	}

	if err := set("created", "createTimestamp"); err != nil {
		return nil, err
	}

	if err := set("lastModified", "modifyTimestamp"); err != nil {
		return nil, err
	}

	if !present {
		return nil, nil
	}

	return base.NewSingularAttribute(d.atType, av), nil
}
