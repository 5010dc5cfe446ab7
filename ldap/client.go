// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"context"
	"fmt"
	"time"

	ldap3 "github.com/go-ldap/ldap/v3"
	logger "github.com/juju/loggo"
)

var log logger.Logger

func init() {
	log = logger.GetLogger("scimgate.ldap")
}

// A failure reported by the backing directory. ResultCode carries the LDAP
// result code of the failed operation.
type DirectoryError struct {
	ResultCode uint16
	Message    string
}

func (de *DirectoryError) Error() string {
	return fmt.Sprintf("directory error %d: %s", de.ResultCode, de.Message)
}

func NewDirectoryError(resultCode uint16, message string) *DirectoryError {
	return &DirectoryError{ResultCode: resultCode, Message: message}
}

// The contract this core consumes from the LDAP transport. Implementations
// are expected to honor context cancellation by aborting the in-flight
// request. Derived attributes issue their secondary lookups one after
// another through the same client.
type DirectoryClient interface {
	// Search returns the entries matching the filter under baseDN. The
	// scope value is one of the go-ldap scope constants.
	Search(ctx context.Context, baseDN string, scope int, filter string, attrs []string, controls []ldap3.Control) ([]*ldap3.Entry, error)

	// Read returns the entry with the given DN, or nil when it does not
	// exist.
	Read(ctx context.Context, dn string, attrs []string) (*ldap3.Entry, error)

	Add(ctx context.Context, req *ldap3.AddRequest) error

	Modify(ctx context.Context, dn string, changes []ldap3.Change) error

	Delete(ctx context.Context, dn string) error
}

// Clock abstracts the time source used for generated timestamps so that
// tests can pin it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
