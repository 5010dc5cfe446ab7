// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package marshal

import (
	logger "github.com/juju/loggo"

	"github.com/syunchanp/scimgate/base"
	"github.com/syunchanp/scimgate/schema"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimgate.marshal")
}

// The result envelope of a query, serialized with totalResults, startIndex
// and the ordered list of resources.
type ListResponse struct {
	TotalResults int
	StartIndex   int
	Resources    []*base.SCIMObject
}

// A Marshaller serializes resources, result lists and errors of one wire
// form and parses them back. The two implementations share the SCIMObject
// model and are selected by content negotiation in the transport.
type Marshaller interface {
	Marshal(so *base.SCIMObject, rd *schema.ResourceDescriptor) ([]byte, error)

	Unmarshal(data []byte, rd *schema.ResourceDescriptor) (*base.SCIMObject, error)

	MarshalList(lr *ListResponse, rd *schema.ResourceDescriptor) ([]byte, error)

	UnmarshalList(data []byte, rd *schema.ResourceDescriptor) (*ListResponse, error)

	MarshalError(se *base.ScimError) []byte

	UnmarshalError(data []byte) (*base.ScimError, error)
}

// the fixed serialization order of the canonical plural element
// sub-attributes, the rest follow in descriptor order
var pluralSubAtOrder = []string{"value", "type", "primary", "display", "operation"}

// returns the sub-attributes of a plural element in the deterministic
// output order
func orderedSubAts(atType *schema.AttributeDescriptor, av *base.AttributeValue) []*base.SCIMAttribute {
	ordered := make([]*base.SCIMAttribute, 0, len(av.Sub))
	emitted := make(map[string]bool)

	if atType.Plural {
		for _, name := range pluralSubAtOrder {
			if sa := av.SubAttr(name); sa != nil {
				ordered = append(ordered, sa)
				emitted[name] = true
			}
		}
	}

	for _, subAt := range atType.SubAttributes {
		if emitted[subAt.NormName] {
			continue
		}

		if sa := av.SubAttr(subAt.NormName); sa != nil {
			ordered = append(ordered, sa)
		}
	}

	return ordered
}
