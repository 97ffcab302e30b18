// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConfiguration indicates a malformed rule catalog or invalid configuration.
var ErrConfiguration = errors.New("configuration error")

// ErrUnknownTask indicates a task name with no entry in the dispatch table.
var ErrUnknownTask = errors.New("unknown task")

// ErrUnhandledConflictType indicates the resolver has no strategy for a conflict kind.
var ErrUnhandledConflictType = errors.New("unhandled conflict type")

// ErrInvalidDecision indicates a decision with out-of-range confidence or
// missing fields for its decision type.
var ErrInvalidDecision = errors.New("invalid decision")
