// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package marshal

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/syunchanp/scimgate/base"
	"github.com/syunchanp/scimgate/schema"
)

// XmlMarshaller reads and writes the XML wire form. The root element takes
// the resource name in the namespace of the resource's main schema,
// extension attributes carry their own schema URN as namespace.
type XmlMarshaller struct{}

func (xm *XmlMarshaller) Marshal(so *base.SCIMObject, rd *schema.ResourceDescriptor) ([]byte, error) {
	doc := etree.NewDocument()

	root := doc.CreateElement(rd.Name)
	root.CreateAttr("xmlns", rd.Schema)

	xm.writeObject(root, so, rd)

	return doc.WriteToBytes()
}

func (xm *XmlMarshaller) writeObject(root *etree.Element, so *base.SCIMObject, rd *schema.ResourceDescriptor) {
	for _, sa := range so.AttributesOfSchema(rd.Schema) {
		writeAttribute(root, sa, "")
	}

	for _, urn := range so.Schemas() {
		if schema.SameUrn(urn, rd.Schema) {
			continue
		}

		for _, sa := range so.AttributesOfSchema(urn) {
			writeAttribute(root, sa, urn)
		}
	}
}

func writeAttribute(parent *etree.Element, sa *base.SCIMAttribute, xmlns string) {
	atType := sa.GetType()

	el := parent.CreateElement(atType.Name)
	if len(xmlns) != 0 {
		el.CreateAttr("xmlns", xmlns)
	}

	if atType.Plural {
		childName := elementName(atType.Name)
		for _, av := range sa.Values {
			child := el.CreateElement(childName)
			writeSubAts(child, atType, av)
		}

		return
	}

	av := sa.GetSingularValue()
	if av == nil {
		return
	}

	if av.IsSimple() {
		el.SetText(av.Simple.String())
		return
	}

	writeSubAts(el, atType, av)
}

func writeSubAts(el *etree.Element, atType *schema.AttributeDescriptor, av *base.AttributeValue) {
	if av.IsSimple() {
		el.SetText(av.Simple.String())
		return
	}

	for _, sub := range orderedSubAts(atType, av) {
		subEl := el.CreateElement(sub.GetType().Name)
		subAv := sub.GetSingularValue()
		if subAv != nil && subAv.IsSimple() {
			subEl.SetText(subAv.Simple.String())
		}
	}
}

// the name of one element of a plural wrapper, the singular of the
// attribute name
func elementName(pluralName string) string {
	if len(pluralName) > 1 && strings.HasSuffix(pluralName, "s") {
		return pluralName[:len(pluralName)-1]
	}

	return pluralName
}

func (xm *XmlMarshaller) Unmarshal(data []byte, rd *schema.ResourceDescriptor) (*base.SCIMObject, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, base.NewInvalidResourceError("Error reading XML: " + err.Error())
	}

	root := doc.Root()
	if root == nil {
		return nil, base.NewInvalidResourceError("The XML document has no root element")
	}

	return parseXmlObject(root, rd)
}

func parseXmlObject(root *etree.Element, rd *schema.ResourceDescriptor) (*base.SCIMObject, error) {
	so := base.NewSCIMObject()
	defaultNs := namespaceOf(root, rd.Schema)

	for _, el := range root.ChildElements() {
		ns := namespaceOf(el, defaultNs)

		atType := rd.GetAttribute(ns, el.Tag)
		if atType == nil {
			// unknown attributes are ignored
			log.Debugf("ignoring the unknown element %s of namespace %s", el.Tag, ns)
			continue
		}

		if err := parseXmlAttribute(so, atType, el); err != nil {
			return nil, err
		}
	}

	return so, nil
}

// the namespace of an element, its own xmlns attribute when present,
// otherwise the inherited default
func namespaceOf(el *etree.Element, inherited string) string {
	if v := el.SelectAttrValue("xmlns", ""); len(v) != 0 {
		return v
	}

	return inherited
}

func parseXmlAttribute(so *base.SCIMObject, atType *schema.AttributeDescriptor, el *etree.Element) error {
	if atType.Plural {
		elements := make([]*base.AttributeValue, 0)
		for _, child := range el.ChildElements() {
			av, err := parseXmlSubAts(atType, child)
			if err != nil {
				return err
			}

			elements = append(elements, av)
		}

		so.Add(base.NewPluralAttribute(atType, elements...))

		return nil
	}

	if atType.IsComplex() {
		av, err := parseXmlSubAts(atType, el)
		if err != nil {
			return err
		}

		so.Add(base.NewSingularAttribute(atType, av))

		return nil
	}

	sv, err := base.ParseValue(atType, strings.TrimSpace(el.Text()))
	if err != nil {
		return err
	}

	so.Add(base.NewSingularAttribute(atType, base.NewSimpleAttrValue(sv)))

	return nil
}

func parseXmlSubAts(atType *schema.AttributeDescriptor, el *etree.Element) (*base.AttributeValue, error) {
	av := base.NewComplexAttrValue()

	children := el.ChildElements()
	if len(children) == 0 {
		// an element holding bare text stands for the value sub-attribute
		valueAt := atType.SubAttribute("value")
		if valueAt == nil {
			return nil, base.NewInvalidValueError(fmt.Sprintf("The element %s must hold sub-attribute elements", el.Tag))
		}

		sv, err := base.ParseValue(valueAt, strings.TrimSpace(el.Text()))
		if err != nil {
			return nil, err
		}

		av.SetSubAttr(base.NewSingularAttribute(valueAt, base.NewSimpleAttrValue(sv)))

		return av, nil
	}

	for _, child := range children {
		subAt := atType.SubAttribute(child.Tag)
		if subAt == nil {
			log.Debugf("ignoring the unknown sub-element %s of attribute %s", child.Tag, atType.Name)
			continue
		}

		sv, err := base.ParseValue(subAt, strings.TrimSpace(child.Text()))
		if err != nil {
			return nil, err
		}

		av.SetSubAttr(base.NewSingularAttribute(subAt, base.NewSimpleAttrValue(sv)))
	}

	return av, nil
}

func (xm *XmlMarshaller) MarshalList(lr *ListResponse, rd *schema.ResourceDescriptor) ([]byte, error) {
	doc := etree.NewDocument()

	root := doc.CreateElement("Response")
	root.CreateAttr("xmlns", rd.Schema)

	root.CreateElement("totalResults").SetText(strconv.Itoa(lr.TotalResults))
	root.CreateElement("startIndex").SetText(strconv.Itoa(lr.StartIndex))

	resources := root.CreateElement("Resources")
	for _, so := range lr.Resources {
		el := resources.CreateElement(rd.Name)
		xm.writeObject(el, so, rd)
	}

	return doc.WriteToBytes()
}

func (xm *XmlMarshaller) UnmarshalList(data []byte, rd *schema.ResourceDescriptor) (*ListResponse, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, base.NewInvalidResourceError("Error reading XML: " + err.Error())
	}

	root := doc.Root()
	if root == nil {
		return nil, base.NewInvalidResourceError("The XML document has no root element")
	}

	lr := &ListResponse{StartIndex: 1}
	lr.Resources = make([]*base.SCIMObject, 0)

	for _, el := range root.ChildElements() {
		switch el.Tag {
		case "totalResults":
			n, err := strconv.Atoi(strings.TrimSpace(el.Text()))
			if err != nil {
				return nil, base.NewInvalidResourceError("Invalid totalResults value " + el.Text())
			}
			lr.TotalResults = n

		case "startIndex":
			n, err := strconv.Atoi(strings.TrimSpace(el.Text()))
			if err != nil {
				return nil, base.NewInvalidResourceError("Invalid startIndex value " + el.Text())
			}
			lr.StartIndex = n

		case "Resources":
			for _, resEl := range el.ChildElements() {
				so, err := parseXmlObject(resEl, rd)
				if err != nil {
					return nil, err
				}

				lr.Resources = append(lr.Resources, so)
			}
		}
	}

	if lr.TotalResults == 0 {
		lr.TotalResults = len(lr.Resources)
	}

	return lr, nil
}

func (xm *XmlMarshaller) MarshalError(se *base.ScimError) []byte {
	doc := etree.NewDocument()

	root := doc.CreateElement("Error")
	root.CreateElement("code").SetText(strconv.Itoa(se.Status))
	root.CreateElement("description").SetText(se.Detail)

	data, err := doc.WriteToBytes()
	if err != nil {
		return []byte(se.Detail)
	}

	return data
}

func (xm *XmlMarshaller) UnmarshalError(data []byte) (*base.ScimError, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, base.NewInvalidResourceError("Error reading XML: " + err.Error())
	}

	root := doc.Root()
	if root == nil || root.Tag != "Error" {
		return nil, base.NewInvalidResourceError("The error payload has no Error element")
	}

	code := 500
	detail := ""
	for _, el := range root.ChildElements() {
		switch el.Tag {
		case "code":
			n, err := strconv.Atoi(strings.TrimSpace(el.Text()))
			if err != nil {
				return nil, base.NewInvalidResourceError("Invalid status code " + el.Text())
			}
			code = n

		case "description":
			detail = el.Text()
		}
	}

	return base.NewErrorWithCode(code, detail), nil
}
