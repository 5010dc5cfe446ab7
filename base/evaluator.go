// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package base

import (
	"fmt"
	"strings"
	"time"

	"github.com/syunchanp/scimgate/schema"
)

// Evaluates a parsed filter against an in-memory resource. Used for the
// post-filtering pass when a filter could not be fully translated to LDAP.
type Evaluator interface {
	Evaluate(so *SCIMObject) bool
}

type AndEvaluator struct {
	children []Evaluator
}

type OrEvaluator struct {
	children []Evaluator
}

type ArithmeticEvaluator struct {
	node *FilterNode
}

type PresenceEvaluator struct {
	node *FilterNode
}

func (and *AndEvaluator) Evaluate(so *SCIMObject) bool {
	for _, ev := range and.children {
		if !ev.Evaluate(so) {
			return false
		}
	}

	return true
}

func (or *OrEvaluator) Evaluate(so *SCIMObject) bool {
	for _, ev := range or.children {
		if ev.Evaluate(so) {
			return true
		}
	}

	return false
}

func (pr *PresenceEvaluator) Evaluate(so *SCIMObject) bool {
	atType := pr.node.GetAtType()
	if atType == nil {
		return false
	}

	if parent := atType.Parent(); parent != nil {
		parentAt := so.Get(atType.Schema, parent.NormName)
		if parentAt == nil {
			return false
		}

		for _, av := range parentAt.Values {
			if sub := av.SubAttr(atType.NormName); sub != nil && len(sub.Values) > 0 {
				return true
			}
		}

		return false
	}

	at := so.Get(atType.Schema, atType.NormName)

	return at != nil && len(at.Values) > 0
}

func (ar *ArithmeticEvaluator) Evaluate(so *SCIMObject) bool {
	atType := ar.node.GetAtType()
	if atType == nil || ar.node.NormValue == nil {
		return false
	}

	// comparison is only defined on simple values, never on a complex parent
	if atType.IsComplex() {
		return false
	}

	if parent := atType.Parent(); parent != nil {
		parentAt := so.Get(atType.Schema, parent.NormName)
		if parentAt == nil {
			return false
		}

		for _, av := range parentAt.Values {
			if sub := av.SubAttr(atType.NormName); sub != nil {
				for _, sv := range sub.Values {
					if compare(sv.Simple, ar.node, atType) {
						return true
					}
				}
			}
		}

		return false
	}

	at := so.Get(atType.Schema, atType.NormName)
	if at == nil {
		return false
	}

	for _, av := range at.Values {
		if av.IsSimple() && compare(av.Simple, ar.node, atType) {
			return true
		}
	}

	return false
}

func compare(sv SimpleValue, node *FilterNode, atType *schema.AttributeDescriptor) bool {
	if sv.IsNil() {
		return false
	}

	switch atType.Type {
	case schema.StringType:
		val := sv.GetStringVal()
		if !atType.CaseExact {
			val = strings.ToLower(val)
		}

		nval := node.NormValue.(string)

		switch node.Op {
		case "EQ":
			return val == nval

		case "CO":
			return strings.Contains(val, nval)

		case "SW":
			return strings.HasPrefix(val, nval)

		case "GT":
			return val > nval

		case "GE":
			return val >= nval

		case "LT":
			return val < nval

		case "LE":
			return val <= nval
		}

	case schema.DateTimeType:
		t := sv.GetDateVal()
		nval := node.NormValue.(time.Time)

		switch node.Op {
		case "EQ":
			return t.Equal(nval)

		case "GT":
			return t.After(nval)

		case "GE":
			return !t.Before(nval)

		case "LT":
			return t.Before(nval)

		case "LE":
			return !t.After(nval)
		}

	case schema.IntegerType:
		i := sv.GetIntVal()
		nval := node.NormValue.(int64)

		switch node.Op {
		case "EQ":
			return i == nval

		case "GT":
			return i > nval

		case "GE":
			return i >= nval

		case "LT":
			return i < nval

		case "LE":
			return i <= nval
		}

	case schema.BooleanType:
		// ordering is undefined for booleans
		if node.Op == "EQ" {
			return sv.GetBoolVal() == node.NormValue.(bool)
		}

	case schema.BinaryType:
		// only equality is defined for binary values
		if node.Op == "EQ" {
			return sv.String() == node.Value
		}
	}

	return false
}

func BuildEvaluator(node *FilterNode) Evaluator {
	switch node.Op {
	case "EQ", "CO", "SW", "GT", "GE", "LT", "LE":
		return &ArithmeticEvaluator{node: node}

	case "PR":
		return &PresenceEvaluator{node: node}

	case "OR":
		return &OrEvaluator{children: buildEvList(node.Children)}

	case "AND":
		return &AndEvaluator{children: buildEvList(node.Children)}
	}

	panic(fmt.Errorf("Unknown filter node type %s", node.Op))
}

func buildEvList(children []*FilterNode) []Evaluator {
	evList := make([]Evaluator, 0, len(children))
	for _, node := range children {
		evList = append(evList, BuildEvaluator(node))
	}

	return evList
}
