// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NetworkEyes Contributors

package lifecycle

import (
	"errors"

	"github.com/samber/oops"

	"github.com/networkeyes/lifecycle/internal/store"
)

// Kind classifies a failed operation.
type Kind string

// Failure kinds reported in operation results.
const (
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindIO         Kind = "io"
	KindStore      Kind = "store"
	KindValidation Kind = "validation"
)

// Error codes attached to lifecycle errors.
const (
	CodeConflict   = "PLUGIN_CONFLICT"
	CodeNotFound   = "PLUGIN_NOT_FOUND"
	CodeIO         = "PLUGIN_IO"
	CodeStore      = "PLUGIN_STORE"
	CodeValidation = "PLUGIN_VALIDATION"
)

// Code returns the error code of the kind.
func (k Kind) Code() string {
	switch k {
	case KindConflict:
		return CodeConflict
	case KindNotFound:
		return CodeNotFound
	case KindIO:
		return CodeIO
	case KindValidation:
		return CodeValidation
	default:
		return CodeStore
	}
}

// Error is a failed lifecycle step. Err carries the oops context of the
// failure; oops reports the innermost code of a chain, so the kind is kept
// on the wrapper as well.
type Error struct {
	Kind     Kind
	Step     step
	PluginID string
	Err      error
}

func (e *Error) Error() string { return e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a lifecycle error. Store sentinels map to
// conflict and not_found; anything else unrecognized is a store failure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		return KindConflict
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	default:
		return KindStore
	}
}

// stepKind is the kind of an unclassified failure at each step.
var stepKind = map[step]Kind{
	stepValidateUser:     KindValidation,
	stepCheck:            KindStore,
	stepCreateDir:        KindIO,
	stepCopy:             KindIO,
	stepInsert:           KindStore,
	stepValidateManifest: KindValidation,
	stepCommit:           KindStore,
	stepDeleteRows:       KindStore,
	stepDeleteCommit:     KindStore,
	stepUpdateCopy:       KindIO,
	stepTouch:            KindStore,
	stepUpdateValidate:   KindValidation,
	stepUpdateCommit:     KindStore,
}

// classify wraps err as the *Error of a failed step.
func classify(st step, pluginID string, err error) *Error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr
	}

	kind, ok := stepKind[st]
	if !ok {
		kind = KindStore
	}
	switch {
	case errors.Is(err, store.ErrConflict):
		kind = KindConflict
	case errors.Is(err, store.ErrNotFound):
		kind = KindNotFound
	}

	return &Error{
		Kind:     kind,
		Step:     st,
		PluginID: pluginID,
		Err: oops.Code(kind.Code()).
			With("step", string(st)).
			With("plugin_id", pluginID).
			Wrap(err),
	}
}
