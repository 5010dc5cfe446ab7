// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package schema

import (
	"fmt"
	"strings"
)

// The descriptor of one SCIM resource, pairing the resource's main schema
// URN with its top-level attribute descriptors. Attributes of extension
// schemas sit in the same list, distinguished by their Schema field.
type ResourceDescriptor struct {
	Name     string
	Endpoint string
	Schema   string

	Attributes []*AttributeDescriptor

	// keyed by lowercase "urn" -> lowercase attribute name
	attrMap map[string]map[string]*AttributeDescriptor
}

func NewResourceDescriptor(name string, endpoint string, schemaUrn string) *ResourceDescriptor {
	rd := &ResourceDescriptor{}
	rd.Name = name
	rd.Endpoint = endpoint
	rd.Schema = schemaUrn
	rd.Attributes = make([]*AttributeDescriptor, 0)
	rd.attrMap = make(map[string]map[string]*AttributeDescriptor)

	return rd
}

func (rd *ResourceDescriptor) AddAttribute(at *AttributeDescriptor) error {
	urnKey := strings.ToLower(at.Schema)
	m := rd.attrMap[urnKey]
	if m == nil {
		m = make(map[string]*AttributeDescriptor)
		rd.attrMap[urnKey] = m
	}

	if _, ok := m[at.NormName]; ok {
		return fmt.Errorf("Duplicate attribute %s in the %s resource under schema %s", at.Name, rd.Name, at.Schema)
	}

	m[at.NormName] = at
	rd.Attributes = append(rd.Attributes, at)

	return nil
}

// Returns the descriptor of the attribute with the given name under the
// given schema URN, or nil. Both arguments are matched case insensitively.
func (rd *ResourceDescriptor) GetAttribute(schemaUrn string, name string) *AttributeDescriptor {
	m := rd.attrMap[strings.ToLower(schemaUrn)]
	if m == nil {
		return nil
	}

	return m[strings.ToLower(name)]
}

// Resolves an attribute path of the form [urn:]name[.subName] against this
// resource. A path without a URN prefix is searched across the main and all
// extension schemas of the resource.
func (rd *ResourceDescriptor) GetAtType(atPath string) *AttributeDescriptor {
	colonPos := strings.LastIndex(atPath, ":")

	var uri string
	if colonPos > 0 {
		uri = atPath[:colonPos]
		atPath = atPath[colonPos+1:]
	}

	name := atPath
	subName := ""
	if dotPos := strings.IndexRune(atPath, '.'); dotPos > 0 {
		name = atPath[:dotPos]
		subName = atPath[dotPos+1:]
	}

	var at *AttributeDescriptor
	if len(uri) != 0 {
		at = rd.GetAttribute(uri, name)
	} else {
		// search all schemas associated with the resource, this helps with
		// shorter attribute paths when the names are unique
		for _, m := range rd.attrMap {
			if v, ok := m[strings.ToLower(name)]; ok {
				at = v
				break
			}
		}
	}

	if at == nil {
		return nil
	}

	if len(subName) != 0 {
		return at.SubAttribute(subName)
	}

	return at
}

// Enumerates the schema URNs of all attributes held by this resource.
func (rd *ResourceDescriptor) SchemaUrns() []string {
	urns := make([]string, 0, len(rd.attrMap))
	urns = append(urns, rd.Schema)
	for _, at := range rd.Attributes {
		if !SameUrn(at.Schema, rd.Schema) {
			dup := false
			for _, u := range urns {
				if SameUrn(u, at.Schema) {
					dup = true
					break
				}
			}

			if !dup {
				urns = append(urns, at.Schema)
			}
		}
	}

	return urns
}

// The catalog of all configured resource descriptors, loaded once at
// startup and immutable afterwards.
type Registry struct {
	resources map[string]*ResourceDescriptor // keyed by lowercase endpoint
	byName    map[string]*ResourceDescriptor
}

func NewRegistry() *Registry {
	reg := &Registry{}
	reg.resources = make(map[string]*ResourceDescriptor)
	reg.byName = make(map[string]*ResourceDescriptor)

	return reg
}

func (reg *Registry) Add(rd *ResourceDescriptor) error {
	epKey := strings.ToLower(strings.Trim(rd.Endpoint, "/"))
	if _, ok := reg.resources[epKey]; ok {
		return fmt.Errorf("A resource is already registered at the endpoint %s", rd.Endpoint)
	}

	reg.resources[epKey] = rd
	reg.byName[strings.ToLower(rd.Name)] = rd
	log.Debugf("registered resource %s at endpoint %s", rd.Name, rd.Endpoint)

	return nil
}

// Returns the resource descriptor registered at the given endpoint, or nil.
func (reg *Registry) Resource(endpoint string) *ResourceDescriptor {
	return reg.resources[strings.ToLower(strings.Trim(endpoint, "/"))]
}

// Returns the resource descriptor with the given resource name, or nil.
func (reg *Registry) ResourceByName(name string) *ResourceDescriptor {
	return reg.byName[strings.ToLower(name)]
}

// Returns the descriptor of the top-level attribute with the given
// (schema URN, name) pair searching all registered resources.
func (reg *Registry) Descriptor(schemaUrn string, name string) *AttributeDescriptor {
	for _, rd := range reg.resources {
		if at := rd.GetAttribute(schemaUrn, name); at != nil {
			return at
		}
	}

	return nil
}

// Returns the named sub-attribute descriptor of the given parent, or nil.
func (reg *Registry) SubDescriptor(parent *AttributeDescriptor, name string) *AttributeDescriptor {
	if parent == nil {
		return nil
	}

	return parent.SubAttribute(name)
}

func (reg *Registry) Resources() []*ResourceDescriptor {
	list := make([]*ResourceDescriptor, 0, len(reg.resources))
	for _, rd := range reg.resources {
		list = append(list, rd)
	}

	return list
}
