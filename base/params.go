// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package base

import (
	"fmt"
	"strings"

	"github.com/syunchanp/scimgate/schema"
)

// A reference to an attribute or one of its sub-attributes,
// [urn:]name[.subName]. Name and SubName are held in lowercase.
type AttributePath struct {
	Schema  string
	Name    string
	SubName string
}

func ParseAttributePath(path string) AttributePath {
	ap := AttributePath{}

	path = strings.TrimSpace(path)
	if pos := strings.LastIndex(path, URI_DELIM); pos > 0 {
		ap.Schema = path[:pos]
		path = path[pos+1:]
	}

	path = strings.ToLower(path)
	if dotPos := strings.IndexRune(path, '.'); dotPos > 0 && dotPos < len(path)-1 {
		ap.Name = path[:dotPos]
		ap.SubName = path[dotPos+1:]
	} else {
		ap.Name = path
	}

	return ap
}

func (ap AttributePath) String() string {
	s := ap.Name
	if len(ap.SubName) != 0 {
		s += ATTR_DELIM + ap.SubName
	}

	if len(ap.Schema) != 0 {
		s = ap.Schema + URI_DELIM + s
	}

	return s
}

// The requested sort order of a query.
type SortParameters struct {
	By        AttributePath
	Ascending bool
}

func NewSortParameters(sortBy string, sortOrder string) (*SortParameters, *ScimError) {
	if len(strings.TrimSpace(sortBy)) == 0 {
		return nil, NewInvalidSortError("The sortBy parameter cannot be empty")
	}

	sp := &SortParameters{By: ParseAttributePath(sortBy), Ascending: true}

	switch strings.ToLower(strings.TrimSpace(sortOrder)) {
	case "", "ascending":
	case "descending":
		sp.Ascending = false
	default:
		return nil, NewInvalidSortError(fmt.Sprintf("Invalid sortOrder value '%s'", sortOrder))
	}

	return sp, nil
}

// The requested result page. StartIndex is 1-based.
type PageParameters struct {
	StartIndex int
	Count      int
}

func NewPageParameters(startIndex int, count int) PageParameters {
	if startIndex < 1 {
		startIndex = 1
	}

	if count < 0 {
		count = 0
	}

	return PageParameters{StartIndex: startIndex, Count: count}
}

// The set of attributes a client asked for. An empty set means every
// attribute. A path naming just an attribute selects the attribute with all
// its sub-attributes, a path naming a sub-attribute selects only that
// sub-attribute of its parent.
type QueryAttributes struct {
	paths []AttributePath
}

// Builds the requested attribute set from the comma separated attributes
// request parameter. An empty string selects everything.
func NewQueryAttributes(attributes string) *QueryAttributes {
	qa := &QueryAttributes{}

	attributes = strings.TrimSpace(attributes)
	if len(attributes) == 0 {
		return qa
	}

	for _, p := range strings.Split(attributes, ",") {
		p = strings.TrimSpace(p)
		if len(p) != 0 {
			qa.paths = append(qa.paths, ParseAttributePath(p))
		}
	}

	return qa
}

func (qa *QueryAttributes) All() bool {
	return len(qa.paths) == 0
}

// Forces the named attribute into the requested set. Used for attributes
// that are always returned, like id.
func (qa *QueryAttributes) AlwaysInclude(schemaUrn string, name string) {
	if qa.All() {
		return
	}

	name = strings.ToLower(name)
	for _, p := range qa.paths {
		if p.Name == name && len(p.SubName) == 0 {
			return
		}
	}

	qa.paths = append(qa.paths, AttributePath{Schema: schemaUrn, Name: name})
}

// Reports whether the attribute of the given descriptor was requested.
// Matching a sub-attribute path counts as a request for the parent.
func (qa *QueryAttributes) IsRequested(atType *schema.AttributeDescriptor) bool {
	if qa.All() {
		return true
	}

	for _, p := range qa.paths {
		if len(p.Schema) != 0 && !schema.SameUrn(p.Schema, atType.Schema) {
			continue
		}

		if p.Name == atType.NormName {
			return true
		}
	}

	return false
}

// Removes from the resource every attribute and sub-attribute outside the
// requested set.
func (qa *QueryAttributes) Pare(so *SCIMObject) {
	if qa.All() {
		return
	}

	type removal struct {
		urn  string
		name string
	}

	toRemove := make([]removal, 0)

	for urnKey, m := range so.attrs {
		for _, sa := range m {
			atType := sa.GetType()
			if !qa.IsRequested(atType) {
				toRemove = append(toRemove, removal{urn: urnKey, name: atType.NormName})
				continue
			}

			if atType.IsComplex() {
				qa.pareSubAts(sa)
				if len(sa.Values) == 0 {
					toRemove = append(toRemove, removal{urn: urnKey, name: atType.NormName})
				}
			}
		}
	}

	for _, r := range toRemove {
		so.Remove(r.urn, r.name)
	}
}

// strips the sub-attributes of a complex attribute down to the requested
// ones; a path requesting the whole attribute keeps every sub-attribute
func (qa *QueryAttributes) pareSubAts(sa *SCIMAttribute) {
	atType := sa.GetType()

	wanted := make(map[string]bool)
	for _, p := range qa.paths {
		if len(p.Schema) != 0 && !schema.SameUrn(p.Schema, atType.Schema) {
			continue
		}

		if p.Name != atType.NormName {
			continue
		}

		if len(p.SubName) == 0 {
			// the whole attribute was requested
			return
		}

		wanted[p.SubName] = true
	}

	kept := sa.Values[:0]
	for _, av := range sa.Values {
		if av.Sub == nil {
			continue
		}

		for name := range av.Sub {
			if !wanted[name] {
				delete(av.Sub, name)
			}
		}

		if len(av.Sub) != 0 {
			kept = append(kept, av)
		}
	}

	sa.Values = kept
}
