// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package ldap

import (
	"context"
	"errors"

	ldap3 "github.com/go-ldap/ldap/v3"

	"github.com/syunchanp/scimgate/base"
)

// Maps a failure reported by the directory client onto the gateway's error
// kinds. Context cancellation passes through unchanged so that the caller
// sees the original cancellation cause.
func MapDirectoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var de *DirectoryError
	if !errors.As(err, &de) {
		return base.NewInternalserverError(err.Error())
	}

	switch de.ResultCode {
	case ldap3.LDAPResultNoSuchObject:
		return base.NewNotFoundError(de.Message)

	case ldap3.LDAPResultInvalidCredentials:
		return base.NewUnAuthorizedError(de.Message)

	case ldap3.LDAPResultInsufficientAccessRights:
		return base.NewForbiddenError(de.Message)

	case ldap3.LDAPResultEntryAlreadyExists:
		return base.NewConflictError(de.Message)

	case ldap3.LDAPResultNoSuchAttribute, ldap3.LDAPResultConstraintViolation,
		ldap3.LDAPResultObjectClassViolation, ldap3.LDAPResultInvalidAttributeSyntax,
		ldap3.LDAPResultNamingViolation, ldap3.LDAPResultUndefinedAttributeType:
		return base.NewInvalidResourceError(de.Message)

	case ldap3.LDAPResultBusy, ldap3.LDAPResultUnavailable, ldap3.ErrorNetwork:
		return base.NewUnavailableError(de.Message)

	case ldap3.LDAPResultAssertionFailed:
		return base.NewPreCondError(de.Message)
	}

	return base.NewInternalserverError(de.Message)
}
