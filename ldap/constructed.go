// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"fmt"
	"strings"

	"github.com/syunchanp/scimgate/base"
)

// A ConstructedValue expands a template of literal text and {attr}
// placeholders against a staged entry, substituting each placeholder with
// the first value of the named LDAP attribute. Used for DN templates like
// uid={uid},ou=People,dc=example,dc=com.
type ConstructedValue struct {
	template string
	parts    []cvPart
}

type cvPart struct {
	literal string
	attr    string // set when this part is a placeholder
}

func NewConstructedValue(template string) (*ConstructedValue, error) {
	cv := &ConstructedValue{template: template}
	cv.parts = make([]cvPart, 0)

	var buf strings.Builder
	rb := []rune(template)
	for i := 0; i < len(rb); i++ {
		c := rb[i]
		switch c {
		case '{':
			end := -1
			for j := i + 1; j < len(rb); j++ {
				if rb[j] == '}' {
					end = j
					break
				}
			}

			if end < 0 {
				return nil, fmt.Errorf("Invalid template '%s', missing } character", template)
			}

			attr := strings.TrimSpace(string(rb[i+1 : end]))
			if len(attr) == 0 {
				return nil, fmt.Errorf("Invalid template '%s', empty placeholder", template)
			}

			if buf.Len() > 0 {
				cv.parts = append(cv.parts, cvPart{literal: buf.String()})
				buf.Reset()
			}

			cv.parts = append(cv.parts, cvPart{attr: attr})
			i = end

		case '}':
			return nil, fmt.Errorf("Invalid template '%s', misplaced } character", template)

		default:
			buf.WriteRune(c)
		}
	}

	if buf.Len() > 0 {
		cv.parts = append(cv.parts, cvPart{literal: buf.String()})
	}

	return cv, nil
}

// The attribute named by the first placeholder. For DN templates this is
// the RDN attribute.
func (cv *ConstructedValue) FirstAttribute() string {
	for _, p := range cv.parts {
		if len(p.attr) != 0 {
			return p.attr
		}
	}

	return ""
}

// Expands the template against the staged entry. Fails when a referenced
// placeholder has no staged value.
func (cv *ConstructedValue) Construct(eb *EntryBuilder) (string, *base.ScimError) {
	var buf strings.Builder
	for _, p := range cv.parts {
		if len(p.attr) == 0 {
			buf.WriteString(p.literal)
			continue
		}

		val, ok := eb.First(p.attr)
		if !ok {
			return "", base.NewInvalidResourceError(fmt.Sprintf("The attribute %s referenced by the template '%s' has no value", p.attr, cv.template))
		}

		buf.WriteString(val)
	}

	return buf.String(), nil
}

func (cv *ConstructedValue) String() string {
	return cv.template
}
