// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package conf

// The static service-provider configuration resource advertised to SCIM
// clients. Authentication schemes belong to the transport and are not part
// of this core.
type Bulk struct {
	Supported      bool `json:"supported"`
	MaxOperations  int  `json:"maxOperations"`
	MaxPayloadSize int  `json:"maxPayloadSize"`
}

type Filter struct {
	Supported  bool `json:"supported"`
	MaxResults int  `json:"maxResults"`
}

type ChangePassword struct {
	Supported bool `json:"supported"`
}

type Sort struct {
	Supported bool `json:"supported"`
}

type Etag struct {
	Supported bool `json:"supported"`
}

type Patch struct {
	Supported bool `json:"supported"`
}

type ServiceProviderConfig struct {
	Schemas          []string       `json:"schemas"`
	DocumentationURL string         `json:"documentationUrl,omitempty"`
	Patch            Patch          `json:"patch"`
	Bulk             Bulk           `json:"bulk"`
	Filter           Filter         `json:"filter"`
	ChangePassword   ChangePassword `json:"changePassword"`
	Sort             Sort           `json:"sort"`
	Etag             Etag           `json:"etag"`
}

const spcUrn = "urn:scim:schemas:core:1.0"

func DefaultServiceProviderConfig(maxResults int) *ServiceProviderConfig {
	spc := &ServiceProviderConfig{}
	spc.Schemas = []string{spcUrn}
	spc.Filter = Filter{Supported: true, MaxResults: maxResults}
	spc.Sort = Sort{Supported: true}
	spc.Patch = Patch{Supported: false}
	spc.Bulk = Bulk{Supported: false}
	spc.ChangePassword = ChangePassword{Supported: false}
	spc.Etag = Etag{Supported: false}

	return spc
}
