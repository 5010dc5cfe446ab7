// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package base

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syunchanp/scimgate/schema"
	"github.com/syunchanp/scimgate/utils"
)

// the parser refuses filters nested deeper than this
const MAX_FILTER_DEPTH = 50

var op_map = map[string]int{"EQ": 0, "CO": 1, "SW": 2, "PR": 3, "GT": 4, "GE": 5, "LT": 6, "LE": 7, "OR": 8, "AND": 9}

// A node of a parsed SCIM filter expression. Logical nodes (AND, OR) carry
// children, leaf nodes carry an attribute path, an operator and for all
// operators except PR a raw literal value.
type FilterNode struct {
	Op        string
	Schema    string // optional URN prefix, as given
	AtName    string // lowercase attribute name
	SubName   string // lowercase sub-attribute name, may be empty
	Name      string // normalized path without the URN prefix
	Value     string // the raw literal
	NormValue interface{}
	atType    *schema.AttributeDescriptor
	Children  []*FilterNode
}

type position struct {
	index      int // current position in the rune array
	tokenStart int // position of the beginning of the token, used for information purpose
	depth      int // the current grouping depth
}

// Parses the given SCIM filter string into an expression tree. The grammar
// is  expr := term ("or" term)* ; term := factor ("and" factor)* ;
// factor := "(" expr ")" | path op value?  with "and" binding tighter than
// "or". Fails with an invalidFilter error on any syntax problem.
func ParseFilter(filter string) (expr *FilterNode, err *ScimError) {
	log.Debugf("parsing filter %s", filter)

	defer func() {
		e := recover()
		if e != nil {
			expr = nil
			err = NewInvalidFilterError(fmt.Sprintf("%v", e))
			log.Debugf("failed to parse filter %s [%s]", filter, err.Detail)
		}
	}()

	filter = strings.TrimSpace(filter)
	if len(filter) == 0 {
		return nil, NewInvalidFilterError("Empty filter")
	}

	rb := []rune(filter)
	pos := &position{}

	xpr := parseOr(rb, pos)

	skipSpace(rb, pos)
	if pos.index < len(rb) {
		return nil, NewInvalidFilterError(fmt.Sprintf("Invalid filter, unexpected character at position %d", pos.index+1))
	}

	return xpr, nil
}

func parseOr(rb []rune, pos *position) *FilterNode {
	node := parseAnd(rb, pos)

	for {
		skipSpace(rb, pos)
		if pos.index >= len(rb) || rb[pos.index] == ')' {
			return node
		}

		save := pos.index
		t := readToken(rb, pos)
		if !strings.EqualFold(t, "or") {
			panic(fmt.Errorf("Invalid filter, expected 'or' but found '%s' at position %d", t, save+1))
		}

		right := parseAnd(rb, pos)

		if node.Op == "OR" {
			node.addChild(right)
		} else {
			tmp := &FilterNode{Op: "OR"}
			tmp.addChild(node)
			tmp.addChild(right)
			node = tmp
		}
	}
}

func parseAnd(rb []rune, pos *position) *FilterNode {
	node := parseFactor(rb, pos)

	for {
		skipSpace(rb, pos)
		if pos.index >= len(rb) || rb[pos.index] == ')' {
			return node
		}

		save := pos.index
		t := readToken(rb, pos)
		if !strings.EqualFold(t, "and") {
			// hand the token back, the caller decides what it is
			pos.index = save
			return node
		}

		right := parseFactor(rb, pos)

		if node.Op == "AND" {
			node.addChild(right)
		} else {
			tmp := &FilterNode{Op: "AND"}
			tmp.addChild(node)
			tmp.addChild(right)
			node = tmp
		}
	}
}

func parseFactor(rb []rune, pos *position) *FilterNode {
	skipSpace(rb, pos)
	if pos.index >= len(rb) {
		panic(fmt.Errorf("Invalid filter, missing expression at position %d", pos.index+1))
	}

	if rb[pos.index] == '(' {
		pos.index++
		pos.depth++
		if pos.depth > MAX_FILTER_DEPTH {
			panic(fmt.Errorf("Invalid filter, nesting deeper than %d levels", MAX_FILTER_DEPTH))
		}

		node := parseOr(rb, pos)

		skipSpace(rb, pos)
		if pos.index >= len(rb) || rb[pos.index] != ')' {
			panic(fmt.Errorf("Invalid filter, parentheses mismatch"))
		}

		pos.index++
		pos.depth--

		return node
	}

	if rb[pos.index] == ')' {
		panic(fmt.Errorf("Invalid filter, parentheses mismatch"))
	}

	return parseLeaf(rb, pos)
}

func parseLeaf(rb []rune, pos *position) *FilterNode {
	at := readToken(rb, pos)
	if len(at) == 0 {
		panic(fmt.Errorf("Invalid filter, missing attribute path at position %d", pos.tokenStart+1))
	}

	node := &FilterNode{}
	node.setPath(at)

	skipSpace(rb, pos)
	opToken := readToken(rb, pos)
	if len(opToken) == 0 {
		panic(fmt.Errorf("Invalid filter, missing operator after the attribute %s", at))
	}

	op := toOperator(opToken)
	if isLogical(op) {
		panic(fmt.Errorf("Invalid filter, misplaced %s operator", op))
	}

	node.Op = op

	if op != "PR" {
		skipSpace(rb, pos)
		valToken := readToken(rb, pos)
		if len(valToken) == 0 {
			panic(fmt.Errorf("Invalid filter, missing value for the operator %s on attribute %s", op, at))
		}

		node.Value = stripQuotes(valToken)
	}

	return node
}

func skipSpace(rb []rune, pos *position) {
	for pos.index < len(rb) && rb[pos.index] == ' ' {
		pos.index++
	}
}

func readToken(rb []rune, pos *position) string {
	skipSpace(rb, pos)
	pos.tokenStart = pos.index

	start := pos.index
	startQuote := false
	escaped := false

	for ; pos.index < len(rb); pos.index++ {
		c := rb[pos.index]

		if startQuote {
			if escaped {
				escaped = false
				continue
			}

			switch c {
			case '\\':
				escaped = true

			case '"':
				pos.index++
				return string(rb[start:pos.index])
			}

			continue
		}

		switch c {
		case '"':
			if pos.index == start {
				startQuote = true
				continue
			}

		case ' ':
			return string(rb[start:pos.index])

		case '(', ')':
			// do not consume the grouping terminals
			return string(rb[start:pos.index])
		}
	}

	if startQuote {
		panic(fmt.Errorf("No ending \" found at the end of the token stream starting at position %d", pos.tokenStart+1))
	}

	return string(rb[start:pos.index])
}

func toOperator(op string) string {
	upperVal := strings.ToUpper(op)
	if _, ok := op_map[upperVal]; !ok {
		panic(fmt.Errorf("Invalid operator %s", op))
	}

	return upperVal
}

func isLogical(op string) bool {
	return op_map[op] >= 8
}

func stripQuotes(token string) string {
	if token[0:1] != "\"" {
		return token
	}

	token = token[1 : len(token)-1]

	var buf strings.Builder
	escaped := false
	for _, c := range token {
		if escaped {
			buf.WriteRune(c)
			escaped = false
			continue
		}

		if c == '\\' {
			escaped = true
			continue
		}

		buf.WriteRune(c)
	}

	return buf.String()
}

func (fn *FilterNode) setPath(t string) {
	// the URN prefix runs up to the last ':'
	if pos := strings.LastIndex(t, URI_DELIM); pos > 0 {
		fn.Schema = t[:pos]
		t = t[pos+1:]
	}

	// the attribute path is case insensitive, the URN is compared
	// case insensitively elsewhere
	t = strings.ToLower(t)

	if dotPos := strings.IndexRune(t, '.'); dotPos > 0 && dotPos < len(t)-1 {
		fn.AtName = t[:dotPos]
		fn.SubName = t[dotPos+1:]
		fn.Name = fn.AtName + ATTR_DELIM + fn.SubName
	} else {
		fn.AtName = t
		fn.Name = t
	}
}

func (fn *FilterNode) IsLogical() bool {
	return isLogical(fn.Op)
}

func (fn *FilterNode) GetAtType() *schema.AttributeDescriptor {
	return fn.atType
}

// Associates the leaf with the descriptor of its target attribute and
// normalizes the raw literal to the descriptor's data type.
func (fn *FilterNode) SetAtType(atType *schema.AttributeDescriptor) *ScimError {
	fn.NormValue = nil
	fn.atType = atType

	return fn.normalize()
}

func (fn *FilterNode) normalize() *ScimError {
	if fn.atType == nil || len(fn.Value) == 0 {
		return nil
	}

	switch fn.atType.Type {
	case schema.StringType, schema.BinaryType:
		if !fn.atType.CaseExact {
			fn.NormValue = strings.ToLower(fn.Value)
		} else {
			fn.NormValue = fn.Value
		}

	case schema.IntegerType:
		i, err := strconv.ParseInt(fn.Value, 10, 64)
		if err != nil {
			return NewInvalidFilterError(fmt.Sprintf("Invalid integer value '%s' in the filter on attribute %s", fn.Value, fn.Name))
		}
		fn.NormValue = i

	case schema.DateTimeType:
		t, err := utils.ParseDateTime(fn.Value)
		if err != nil {
			return NewInvalidFilterError(fmt.Sprintf("Invalid datetime value '%s' in the filter on attribute %s", fn.Value, fn.Name))
		}
		fn.NormValue = t

	case schema.BooleanType:
		switch strings.ToLower(fn.Value) {
		case "true":
			fn.NormValue = true
		case "false":
			fn.NormValue = false
		default:
			return NewInvalidFilterError(fmt.Sprintf("Invalid boolean value '%s' in the filter on attribute %s", fn.Value, fn.Name))
		}
	}

	return nil
}

func (fn *FilterNode) addChild(child *FilterNode) {
	if fn.Children == nil {
		fn.Children = make([]*FilterNode, 0)
	}

	fn.Children = append(fn.Children, child)
}

func (fn *FilterNode) String() string {
	if fn.IsLogical() {
		parts := make([]string, 0, len(fn.Children))
		for _, ch := range fn.Children {
			parts = append(parts, ch.String())
		}

		return "(" + strings.Join(parts, " "+strings.ToLower(fn.Op)+" ") + ")"
	}

	path := fn.Name
	if len(fn.Schema) != 0 {
		path = fn.Schema + URI_DELIM + path
	}

	if fn.Op == "PR" {
		return path + " pr"
	}

	return path + " " + strings.ToLower(fn.Op) + " \"" + fn.Value + "\""
}

// Resolves every leaf of the filter tree against the given resource
// descriptor. Leaves whose path does not resolve keep a nil descriptor and
// never match during evaluation; translation handles them separately.
func BindFilter(fn *FilterNode, rd *schema.ResourceDescriptor) *ScimError {
	if fn == nil {
		return nil
	}

	if fn.IsLogical() {
		for _, ch := range fn.Children {
			if err := BindFilter(ch, rd); err != nil {
				return err
			}
		}

		return nil
	}

	path := fn.Name
	if len(fn.Schema) != 0 {
		path = fn.Schema + URI_DELIM + path
	}

	atType := rd.GetAtType(path)
	if atType == nil {
		log.Debugf("no descriptor found for the filter path %s", path)
		return nil
	}

	// a bare path naming a plural complex attribute compares against the
	// value sub-attribute of its elements
	if atType.IsComplex() && atType.Plural && len(fn.SubName) == 0 && fn.Op != "PR" {
		if valueAt := atType.SubAttribute("value"); valueAt != nil {
			atType = valueAt
		}
	}

	return fn.SetAtType(atType)
}
