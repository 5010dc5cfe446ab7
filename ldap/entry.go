// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"strings"

	ldap3 "github.com/go-ldap/ldap/v3"
)

// EntryBuilder stages the attributes of an LDAP entry while the mappers and
// fixed attributes run, before the DN is constructed. Attribute types are
// matched case insensitively, the casing of the first writer wins.
type EntryBuilder struct {
	names  []string            // lowercase type names in insertion order
	casing map[string]string   // lowercase -> name as first written
	attrs  map[string][]string // lowercase -> values
}

func NewEntryBuilder() *EntryBuilder {
	eb := &EntryBuilder{}
	eb.names = make([]string, 0)
	eb.casing = make(map[string]string)
	eb.attrs = make(map[string][]string)

	return eb
}

func (eb *EntryBuilder) Add(name string, vals ...string) {
	key := strings.ToLower(name)
	if _, ok := eb.attrs[key]; !ok {
		eb.names = append(eb.names, key)
		eb.casing[key] = name
	}

	eb.attrs[key] = append(eb.attrs[key], vals...)
}

// Replaces any staged values of the attribute with the given ones.
func (eb *EntryBuilder) Overwrite(name string, vals ...string) {
	key := strings.ToLower(name)
	if _, ok := eb.attrs[key]; !ok {
		eb.names = append(eb.names, key)
		eb.casing[key] = name
	}

	eb.attrs[key] = append([]string(nil), vals...)
}

func (eb *EntryBuilder) Has(name string) bool {
	_, ok := eb.attrs[strings.ToLower(name)]
	return ok
}

// Returns the first staged value of the attribute.
func (eb *EntryBuilder) First(name string) (string, bool) {
	vals := eb.attrs[strings.ToLower(name)]
	if len(vals) == 0 {
		return "", false
	}

	return vals[0], true
}

func (eb *EntryBuilder) Values(name string) []string {
	return eb.attrs[strings.ToLower(name)]
}

// Materializes the staged attributes as an add request for the given DN.
func (eb *EntryBuilder) ToAddRequest(dn string) *ldap3.AddRequest {
	req := ldap3.NewAddRequest(dn, nil)
	for _, key := range eb.names {
		req.Attribute(eb.casing[key], eb.attrs[key])
	}

	return req
}

// Materializes the staged attributes as an entry, used as the target side
// of a modification diff.
func (eb *EntryBuilder) ToEntry(dn string) *ldap3.Entry {
	attrs := make([]*ldap3.EntryAttribute, 0, len(eb.names))
	for _, key := range eb.names {
		attrs = append(attrs, ldap3.NewEntryAttribute(eb.casing[key], eb.attrs[key]))
	}

	return &ldap3.Entry{DN: dn, Attributes: attrs}
}
