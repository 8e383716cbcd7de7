// Package errors provides error handling for syncprov.
//
// It re-exports github.com/cockroachdb/errors, giving the provider:
//   - stack traces for debugging
//   - error wrapping and context
//   - structured detail/hint annotations surfaced in logs
//   - errors.Is/As-compatible chains
//
// Usage:
//
//	err := errors.New("something went wrong")
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// Detail/hint annotations
var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithDetailf     = crdb.WithDetailf
	WithSafeDetails = crdb.WithSafeDetails
)

// Error inspection
var (
	Is            = crdb.Is
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapOnce    = crdb.UnwrapOnce
	UnwrapAll     = crdb.UnwrapAll
	GetAllDetails = crdb.GetAllDetails
	FlattenDetails = crdb.FlattenDetails
)

// Domains let callers classify an error kind without string-matching
// messages.
var (
	WithDomain = crdb.WithDomain
	GetDomain  = crdb.GetDomain
)

// AssertionFailedf returns a structured assertion error (it does not
// panic) — used only for invariant violations that indicate a programming bug
// (e.g. a CSN comparison that should be impossible to fail).
var AssertionFailedf = crdb.AssertionFailedf
