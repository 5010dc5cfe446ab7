// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package conf

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	logger "github.com/juju/loggo"

	"github.com/syunchanp/scimgate/ldap"
	"github.com/syunchanp/scimgate/schema"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimgate.conf")
}

// The root of the mapping configuration document. The document is JSON,
// one resource definition per exposed SCIM resource type.
type MappingConfig struct {
	Resources  []*ResourceDefinition `json:"resources"`
	MaxResults int                   `json:"maxResults"`
}

type ResourceDefinition struct {
	Name        string                 `json:"name"`
	Schema      string                 `json:"schema"`
	Endpoint    string                 `json:"endpoint"`
	LdapSearch  *LdapSearchDefinition  `json:"ldapSearch"`
	LdapAdd     *LdapAddDefinition     `json:"ldapAdd"`
	IdAttribute string                 `json:"idAttribute"`
	Attributes  []*AttributeDefinition `json:"attributes"`
}

type LdapSearchDefinition struct {
	BaseDN string `json:"baseDN"`
	Filter string `json:"filter"`
	Scope  string `json:"scope"`
}

type LdapAddDefinition struct {
	DnTemplate      string                      `json:"dnTemplate"`
	FixedAttributes []*FixedAttributeDefinition `json:"fixedAttributes"`
}

type FixedAttributeDefinition struct {
	LdapAttribute string   `json:"ldapAttribute"`
	FixedValues   []string `json:"fixedValues"`
	OnConflict    string   `json:"onConflict"`
}

// An attribute definition carries exactly one of the four shape records.
type AttributeDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Schema      string `json:"schema"`
	ReadOnly    bool   `json:"readOnly"`
	Required    bool   `json:"required"`

	Simple        *SimpleDefinition        `json:"simple"`
	Complex       *ComplexDefinition       `json:"complex"`
	SimplePlural  *SimplePluralDefinition  `json:"simplePlural"`
	ComplexPlural *ComplexPluralDefinition `json:"complexPlural"`

	Derivation *DerivationDefinition `json:"derivation"`
}

type SimpleDefinition struct {
	DataType  string             `json:"dataType"`
	CaseExact bool               `json:"caseExact"`
	Mapping   *MappingDefinition `json:"mapping"`
}

type ComplexDefinition struct {
	SubAttributes []*SubAttributeDefinition `json:"subAttributes"`
}

type SimplePluralDefinition struct {
	DataType    string               `json:"dataType"`
	CaseExact   bool                 `json:"caseExact"`
	PluralTypes []string             `json:"pluralTypes"`
	Mappings    []*MappingDefinition `json:"mappings"`
}

type ComplexPluralDefinition struct {
	PluralTypes   []string                  `json:"pluralTypes"`
	SubAttributes []*SubAttributeDefinition `json:"subAttributes"`
	Mappings      []*MappingDefinition      `json:"mappings"`
}

type SubAttributeDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	DataType    string             `json:"dataType"`
	CaseExact   bool               `json:"caseExact"`
	ReadOnly    bool               `json:"readOnly"`
	Required    bool               `json:"required"`
	Mapping     *MappingDefinition `json:"mapping"`
}

type MappingDefinition struct {
	PluralType    string `json:"pluralType"`
	LdapAttribute string `json:"ldapAttribute"`
	Transform     string `json:"transform"`
}

type DerivationDefinition struct {
	Name string `json:"name"`
}

func ParseMappingFile(name string) (*MappingConfig, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}

	log.Debugf("loading mapping configuration from file %s", name)

	return ParseMappingConfig(data)
}

func ParseMappingConfig(data []byte) (*MappingConfig, error) {
	cf := &MappingConfig{}

	err := json.Unmarshal(data, cf)
	if err != nil {
		return nil, err
	}

	if len(cf.Resources) == 0 {
		return nil, fmt.Errorf("The mapping configuration contains no resources")
	}

	if cf.MaxResults <= 0 {
		cf.MaxResults = 200
	}

	return cf, nil
}

// The runtime form of the configuration, the descriptor catalog plus one
// resource mapper per resource definition. Built once at startup, immutable
// afterwards.
type Loaded struct {
	Registry   *schema.Registry
	Mappers    map[string]*ldap.ResourceMapper // keyed by lowercase endpoint
	MaxResults int
}

// Builds descriptors and mappers from the parsed document. Unknown
// transformation or derivation names, duplicate attributes and malformed
// templates all fail the load.
func Load(cf *MappingConfig) (*Loaded, error) {
	reg := schema.NewRegistry()
	mappers := make(map[string]*ldap.ResourceMapper)

	for _, res := range cf.Resources {
		rm, err := loadResource(res, reg)
		if err != nil {
			return nil, err
		}

		mappers[strings.ToLower(strings.Trim(rm.Endpoint, "/"))] = rm
	}

	return &Loaded{Registry: reg, Mappers: mappers, MaxResults: cf.MaxResults}, nil
}

func loadResource(res *ResourceDefinition, reg *schema.Registry) (*ldap.ResourceMapper, error) {
	if len(strings.TrimSpace(res.Name)) == 0 {
		return nil, fmt.Errorf("A resource definition has no name")
	}

	if len(strings.TrimSpace(res.Schema)) == 0 {
		return nil, fmt.Errorf("The %s resource has no schema URN", res.Name)
	}

	if res.LdapSearch == nil || len(strings.TrimSpace(res.LdapSearch.BaseDN)) == 0 {
		return nil, fmt.Errorf("The %s resource has no ldapSearch definition", res.Name)
	}

	endpoint := strings.TrimSpace(res.Endpoint)
	if len(endpoint) == 0 {
		endpoint = "/" + res.Name + "s"
	}

	rd := schema.NewResourceDescriptor(res.Name, endpoint, res.Schema)
	addCommonAttrs(rd)

	attrMappers := make([]ldap.AttributeMapper, 0, len(res.Attributes))
	derived := make([]ldap.DerivedAttribute, 0)

	for _, attrDef := range res.Attributes {
		atType, m, err := loadAttribute(attrDef, res.Schema)
		if err != nil {
			return nil, fmt.Errorf("%s resource: %s", res.Name, err)
		}

		if err := rd.AddAttribute(atType); err != nil {
			return nil, err
		}

		if m != nil {
			attrMappers = append(attrMappers, m)
		}

		if attrDef.Derivation != nil {
			da, err := ldap.NewDerivedAttribute(attrDef.Derivation.Name)
			if err != nil {
				return nil, fmt.Errorf("%s resource: %s", res.Name, err)
			}

			da.Initialize(atType)
			derived = append(derived, da)
		}
	}

	if err := reg.Add(rd); err != nil {
		return nil, err
	}

	params := ldap.ResourceMapperParams{
		ResourceDescriptor: rd,
		SearchBaseDN:       res.LdapSearch.BaseDN,
		SearchScope:        res.LdapSearch.Scope,
		SearchFilter:       res.LdapSearch.Filter,
		IdAttribute:        res.IdAttribute,
		Mappers:            attrMappers,
		Derived:            derived,
	}

	if res.LdapAdd != nil {
		params.DnTemplate = res.LdapAdd.DnTemplate
		for _, fa := range res.LdapAdd.FixedAttributes {
			params.FixedAttributes = append(params.FixedAttributes, ldap.FixedAttribute{
				LdapAttr:   fa.LdapAttribute,
				Values:     fa.FixedValues,
				OnConflict: fa.OnConflict,
			})
		}
	}

	return ldap.NewResourceMapper(params)
}

// every resource carries the id attribute whether or not the document
// declares it
func addCommonAttrs(rd *schema.ResourceDescriptor) {
	if rd.GetAttribute(rd.Schema, "id") != nil {
		return
	}

	idAt, err := schema.SingularSimple("id", schema.StringType, "The unique identifier of the resource", rd.Schema, true, false, true)
	if err != nil {
		panic(err)
	}

	rd.AddAttribute(idAt)
}

func loadAttribute(def *AttributeDefinition, resourceSchema string) (*schema.AttributeDescriptor, ldap.AttributeMapper, error) {
	schemaUrn := strings.TrimSpace(def.Schema)
	if len(schemaUrn) == 0 {
		schemaUrn = resourceSchema
	}

	shapes := 0
	for _, present := range []bool{def.Simple != nil, def.Complex != nil, def.SimplePlural != nil, def.ComplexPlural != nil} {
		if present {
			shapes++
		}
	}

	if shapes != 1 {
		return nil, nil, fmt.Errorf("The attribute %s must carry exactly one of simple, complex, simplePlural or complexPlural", def.Name)
	}

	switch {
	case def.Simple != nil:
		return loadSimple(def, schemaUrn)

	case def.Complex != nil:
		return loadComplex(def, schemaUrn)

	case def.SimplePlural != nil:
		return loadSimplePlural(def, schemaUrn)

	default:
		return loadComplexPlural(def, schemaUrn)
	}
}

func loadSimple(def *AttributeDefinition, schemaUrn string) (*schema.AttributeDescriptor, ldap.AttributeMapper, error) {
	dt, err := schema.ParseDataType(def.Simple.DataType)
	if err != nil {
		return nil, nil, err
	}

	atType, err := schema.SingularSimple(def.Name, dt, def.Description, schemaUrn, def.ReadOnly, def.Required, def.Simple.CaseExact)
	if err != nil {
		return nil, nil, err
	}

	if def.Simple.Mapping == nil {
		return atType, nil, nil
	}

	tr, err := ldap.GetTransformation(def.Simple.Mapping.Transform)
	if err != nil {
		return nil, nil, err
	}

	return atType, ldap.NewSimpleMapper(atType, def.Simple.Mapping.LdapAttribute, tr), nil
}

func loadComplex(def *AttributeDefinition, schemaUrn string) (*schema.AttributeDescriptor, ldap.AttributeMapper, error) {
	subAttrs, err := loadSubAttributes(def.Complex.SubAttributes, schemaUrn)
	if err != nil {
		return nil, nil, err
	}

	atType, err := schema.SingularComplex(def.Name, def.Description, schemaUrn, def.ReadOnly, def.Required, subAttrs)
	if err != nil {
		return nil, nil, err
	}

	subMappers := make([]*ldap.SimpleMapper, 0, len(def.Complex.SubAttributes))
	for _, subDef := range def.Complex.SubAttributes {
		if subDef.Mapping == nil {
			continue
		}

		tr, err := ldap.GetTransformation(subDef.Mapping.Transform)
		if err != nil {
			return nil, nil, err
		}

		subMappers = append(subMappers, ldap.NewSimpleMapper(atType.SubAttribute(subDef.Name), subDef.Mapping.LdapAttribute, tr))
	}

	if len(subMappers) == 0 {
		return atType, nil, nil
	}

	return atType, ldap.NewComplexMapper(atType, subMappers), nil
}

func loadSubAttributes(defs []*SubAttributeDefinition, schemaUrn string) ([]*schema.AttributeDescriptor, error) {
	subAttrs := make([]*schema.AttributeDescriptor, 0, len(defs))
	for _, subDef := range defs {
		dt, err := schema.ParseDataType(subDef.DataType)
		if err != nil {
			return nil, err
		}

		subAt, err := schema.SingularSimple(subDef.Name, dt, subDef.Description, schemaUrn, subDef.ReadOnly, subDef.Required, subDef.CaseExact)
		if err != nil {
			return nil, err
		}

		subAttrs = append(subAttrs, subAt)
	}

	return subAttrs, nil
}

func loadSimplePlural(def *AttributeDefinition, schemaUrn string) (*schema.AttributeDescriptor, ldap.AttributeMapper, error) {
	dt, err := schema.ParseDataType(def.SimplePlural.DataType)
	if err != nil {
		return nil, nil, err
	}

	atType, err := schema.PluralSimple(def.Name, dt, def.Description, schemaUrn, def.ReadOnly, def.Required, def.SimplePlural.CaseExact, def.SimplePlural.PluralTypes)
	if err != nil {
		return nil, nil, err
	}

	bindings, err := loadBindings(atType, def.SimplePlural.Mappings)
	if err != nil {
		return nil, nil, err
	}

	if len(bindings) == 0 {
		return atType, nil, nil
	}

	return atType, ldap.NewPluralMapper(atType, bindings), nil
}

func loadComplexPlural(def *AttributeDefinition, schemaUrn string) (*schema.AttributeDescriptor, ldap.AttributeMapper, error) {
	subAttrs, err := loadSubAttributes(def.ComplexPlural.SubAttributes, schemaUrn)
	if err != nil {
		return nil, nil, err
	}

	atType, err := schema.PluralComplex(def.Name, def.Description, schemaUrn, def.ReadOnly, def.Required, def.ComplexPlural.PluralTypes, subAttrs)
	if err != nil {
		return nil, nil, err
	}

	bindings, err := loadBindings(atType, def.ComplexPlural.Mappings)
	if err != nil {
		return nil, nil, err
	}

	if len(bindings) == 0 {
		return atType, nil, nil
	}

	return atType, ldap.NewPluralMapper(atType, bindings), nil
}

func loadBindings(atType *schema.AttributeDescriptor, defs []*MappingDefinition) ([]ldap.PluralBinding, error) {
	bindings := make([]ldap.PluralBinding, 0, len(defs))
	seenDefault := false

	for _, m := range defs {
		tr, err := ldap.GetTransformation(m.Transform)
		if err != nil {
			return nil, err
		}

		pluralType := strings.TrimSpace(m.PluralType)
		if len(pluralType) == 0 {
			if seenDefault {
				return nil, fmt.Errorf("The plural attribute %s has more than one mapping without a pluralType", atType.Name)
			}

			seenDefault = true
		} else if !atType.HasPluralType(pluralType) {
			return nil, fmt.Errorf("The mapping of attribute %s references the undeclared plural type %s", atType.Name, pluralType)
		}

		bindings = append(bindings, ldap.PluralBinding{
			PluralType: pluralType,
			LdapAttr:   m.LdapAttribute,
			Transform:  tr,
		})
	}

	return bindings, nil
}
