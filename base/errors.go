// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package base

import (
	"encoding/json"
)

var (
	ST_INVALIDFILTER = "invalidFilter"
	ST_INVALIDRES    = "invalidResource"
	ST_INVALIDVALUE  = "invalidValue"
	ST_INVALIDSORT   = "invalidSort"
)

// The error type surfaced by every operation of the gateway core. Status
// carries the HTTP-style code the transport should answer with.
type ScimError struct {
	ScimType string `json:"scimType,omitempty"`
	Detail   string `json:"description"`
	Status   int    `json:"code"`
}

type errorEnvelope struct {
	Errors []*ScimError `json:"Errors"`
}

func (se *ScimError) Serialize() []byte {
	data, err := json.Marshal(&errorEnvelope{Errors: []*ScimError{se}})
	if err != nil {
		return []byte(err.Error())
	}

	return data
}

func (se *ScimError) Error() string {
	return se.Detail
}

func (se *ScimError) Code() int {
	return se.Status
}

func newError(status int, scimType string, detail string) *ScimError {
	return &ScimError{Status: status, ScimType: scimType, Detail: detail}
}

func NewInvalidFilterError(detail string) *ScimError {
	return newError(400, ST_INVALIDFILTER, detail)
}

func NewInvalidResourceError(detail string) *ScimError {
	return newError(400, ST_INVALIDRES, detail)
}

func NewInvalidValueError(detail string) *ScimError {
	return newError(400, ST_INVALIDVALUE, detail)
}

func NewInvalidSortError(detail string) *ScimError {
	return newError(400, ST_INVALIDSORT, detail)
}

func NewUnAuthorizedError(detail string) *ScimError {
	return newError(401, "", detail)
}

func NewForbiddenError(detail string) *ScimError {
	return newError(403, "", detail)
}

func NewNotFoundError(detail string) *ScimError {
	return newError(404, "", detail)
}

func NewConflictError(detail string) *ScimError {
	return newError(409, "", detail)
}

func NewPreCondError(detail string) *ScimError {
	return newError(412, "", detail)
}

func NewInternalserverError(detail string) *ScimError {
	return newError(500, "", detail)
}

func NewUnavailableError(detail string) *ScimError {
	return newError(503, "", detail)
}

// Builds a ScimError carrying the given status code, used when
// reconstructing an error from its wire form.
func NewErrorWithCode(status int, detail string) *ScimError {
	return newError(status, "", detail)
}
