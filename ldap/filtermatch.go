// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"fmt"
	"strconv"
	"strings"

	ldap3 "github.com/go-ldap/ldap/v3"
)

// ldapFilter is a parsed LDAP search filter that can be evaluated against
// an entry. go-ldap compiles filters to their BER wire form only, so the
// entry-side evaluation needed for the searchFilter guard is done here.
// Matching follows the caseIgnoreMatch rule, which is what the guard
// filters of this gateway (objectClass, structural attributes) use.
type ldapFilter struct {
	op       string // "&", "|", "!", "=", ">=", "<=", "present", "substr"
	attr     string
	value    string
	segs     []string // substring segments, empty strings mark leading/trailing *
	children []*ldapFilter
}

// Parses the string form of an LDAP filter. Extensible match rules are not
// supported, the subset handled here covers equality, substring, presence,
// ordering and the three logical operators.
func ParseLdapFilter(filter string) (f *ldapFilter, err error) {
	defer func() {
		e := recover()
		if e != nil {
			f = nil
			err = fmt.Errorf("%v", e)
		}
	}()

	rb := []rune(strings.TrimSpace(filter))
	if len(rb) == 0 {
		return nil, fmt.Errorf("Empty LDAP filter")
	}

	idx := 0
	f = parseLdapNode(rb, &idx)
	if idx != len(rb) {
		return nil, fmt.Errorf("Invalid LDAP filter '%s', trailing characters at position %d", filter, idx+1)
	}

	return f, nil
}

func parseLdapNode(rb []rune, idx *int) *ldapFilter {
	if *idx >= len(rb) || rb[*idx] != '(' {
		panic(fmt.Errorf("Invalid LDAP filter, expected ( at position %d", *idx+1))
	}

	*idx++ // consume (
	if *idx >= len(rb) {
		panic(fmt.Errorf("Invalid LDAP filter, truncated expression"))
	}

	node := &ldapFilter{}

	switch rb[*idx] {
	case '&', '|', '!':
		node.op = string(rb[*idx])
		*idx++
		for *idx < len(rb) && rb[*idx] == '(' {
			node.children = append(node.children, parseLdapNode(rb, idx))
		}

		if len(node.children) == 0 {
			panic(fmt.Errorf("Invalid LDAP filter, the %s operator has no operands", node.op))
		}

		if node.op == "!" && len(node.children) != 1 {
			panic(fmt.Errorf("Invalid LDAP filter, the ! operator takes exactly one operand"))
		}

	default:
		parseLdapAssertion(rb, idx, node)
	}

	if *idx >= len(rb) || rb[*idx] != ')' {
		panic(fmt.Errorf("Invalid LDAP filter, missing ) at position %d", *idx+1))
	}

	*idx++ // consume )

	return node
}

func parseLdapAssertion(rb []rune, idx *int, node *ldapFilter) {
	start := *idx
	for *idx < len(rb) && rb[*idx] != '=' && rb[*idx] != ')' {
		*idx++
	}

	if *idx >= len(rb) || rb[*idx] != '=' {
		panic(fmt.Errorf("Invalid LDAP filter, missing = in the assertion at position %d", start+1))
	}

	attr := string(rb[start:*idx])
	node.op = "="
	if strings.HasSuffix(attr, ">") || strings.HasSuffix(attr, "<") {
		node.op = attr[len(attr)-1:] + "="
		attr = attr[:len(attr)-1]
	}

	attr = strings.TrimSpace(attr)
	if len(attr) == 0 {
		panic(fmt.Errorf("Invalid LDAP filter, empty attribute name at position %d", start+1))
	}

	node.attr = attr
	*idx++ // consume =

	valStart := *idx
	for *idx < len(rb) && rb[*idx] != ')' {
		*idx++
	}

	val := string(rb[valStart:*idx])

	if node.op != "=" {
		node.value = unescapeLdapValue(val)
		return
	}

	if val == "*" {
		node.op = "present"
		return
	}

	if strings.ContainsRune(val, '*') {
		node.op = "substr"
		segs := strings.Split(val, "*")
		for i, s := range segs {
			segs[i] = unescapeLdapValue(s)
		}
		node.segs = segs
		return
	}

	node.value = unescapeLdapValue(val)
}

// reverses the escaping applied by ldap3.EscapeFilter
func unescapeLdapValue(val string) string {
	if !strings.ContainsRune(val, '\\') {
		return val
	}

	var buf strings.Builder
	rb := []rune(val)
	for i := 0; i < len(rb); i++ {
		if rb[i] == '\\' && i+2 < len(rb) {
			code, err := strconv.ParseUint(string(rb[i+1:i+3]), 16, 8)
			if err == nil {
				buf.WriteByte(byte(code))
				i += 2
				continue
			}
		}

		buf.WriteRune(rb[i])
	}

	return buf.String()
}

// Evaluates the filter against the entry. Attribute names and values are
// compared case insensitively.
func (f *ldapFilter) Matches(entry *ldap3.Entry) bool {
	switch f.op {
	case "&":
		for _, ch := range f.children {
			if !ch.Matches(entry) {
				return false
			}
		}

		return true

	case "|":
		for _, ch := range f.children {
			if ch.Matches(entry) {
				return true
			}
		}

		return false

	case "!":
		return !f.children[0].Matches(entry)

	case "present":
		return len(entry.GetEqualFoldAttributeValues(f.attr)) > 0
	}

	vals := entry.GetEqualFoldAttributeValues(f.attr)
	for _, v := range vals {
		if f.matchesValue(v) {
			return true
		}
	}

	return false
}

func (f *ldapFilter) matchesValue(v string) bool {
	fv := strings.ToLower(v)

	switch f.op {
	case "=":
		return fv == strings.ToLower(f.value)

	case ">=":
		return fv >= strings.ToLower(f.value)

	case "<=":
		return fv <= strings.ToLower(f.value)

	case "substr":
		return matchSegments(fv, f.segs)
	}

	return false
}

func matchSegments(v string, segs []string) bool {
	// the first and last segments anchor to the ends, the inner ones float
	first := strings.ToLower(segs[0])
	if len(first) != 0 && !strings.HasPrefix(v, first) {
		return false
	}

	last := strings.ToLower(segs[len(segs)-1])
	if len(last) != 0 && !strings.HasSuffix(v, last) {
		return false
	}

	pos := len(first)
	end := len(v) - len(last)
	if pos > end {
		return false
	}

	for _, seg := range segs[1 : len(segs)-1] {
		seg = strings.ToLower(seg)
		if len(seg) == 0 {
			continue
		}

		found := strings.Index(v[pos:end], seg)
		if found < 0 {
			return false
		}

		pos += found + len(seg)
	}

	return true
}

func (f *ldapFilter) String() string {
	switch f.op {
	case "&", "|", "!":
		var buf strings.Builder
		buf.WriteString("(" + f.op)
		for _, ch := range f.children {
			buf.WriteString(ch.String())
		}
		buf.WriteString(")")

		return buf.String()

	case "present":
		return "(" + f.attr + "=*)"

	case "substr":
		escaped := make([]string, len(f.segs))
		for i, s := range f.segs {
			escaped[i] = ldap3.EscapeFilter(s)
		}

		return "(" + f.attr + "=" + strings.Join(escaped, "*") + ")"
	}

	return "(" + f.attr + f.op + ldap3.EscapeFilter(f.value) + ")"
}
