// Package tmerr holds the error taxonomy of the topic map engine.
package tmerr

import (
	"fmt"
	"strings"
	"time"

	"github.com/stribert/striberts-quaaxtm-sub002/internal/construct"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeIdentity represents identity collisions
	ErrorTypeIdentity ErrorType = "identity"
	// ErrorTypeModel represents TMDM model constraint violations
	ErrorTypeModel ErrorType = "model"
	// ErrorTypeScope represents variant scope violations
	ErrorTypeScope ErrorType = "scope"
	// ErrorTypeStorage represents failures of the construct store
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeInUse represents removal of a topic that is still referenced
	ErrorTypeInUse ErrorType = "in_use"
	// ErrorTypeNotFound represents dereferencing a construct that does not exist
	ErrorTypeNotFound ErrorType = "not_found"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// ErrNotFound matches every ConstructNotFound via errors.Is.
var ErrNotFound = NewBaseError(ErrorTypeNotFound, "construct not found", nil)

// ConstructNotFound is returned when a reference does not resolve to a stored construct.
type ConstructNotFound struct {
	*BaseError
	Ref construct.Ref
}

// NewConstructNotFound reports that ref does not resolve.
func NewConstructNotFound(ref construct.Ref) *ConstructNotFound {
	return &ConstructNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("construct not found: %s", ref), nil),
		Ref:       ref,
	}
}

// Is makes errors.Is(err, ErrNotFound) hold for every ConstructNotFound.
func (e *ConstructNotFound) Is(target error) bool {
	return target == ErrNotFound
}

// Identity Errors

// IdentityConflict is returned by the identity index when a value is already
// bound to a different construct. It is recoverable: with automerge enabled
// the caller merges the two topics instead of failing.
type IdentityConflict struct {
	*BaseError
	Value     string
	Kind      construct.IdentityKind
	Existing  construct.Ref
	Requested construct.Ref
}

// NewIdentityConflict reports that value is bound to existing instead of requested.
func NewIdentityConflict(value string, kind construct.IdentityKind, existing, requested construct.Ref) *IdentityConflict {
	return &IdentityConflict{
		BaseError: NewBaseError(ErrorTypeIdentity,
			fmt.Sprintf("%s %q is bound to %s, not %s", kind, value, existing, requested), nil),
		Value:     value,
		Kind:      kind,
		Existing:  existing,
		Requested: requested,
	}
}

// Mergeable reports whether the conflict is between two topics.
func (e *IdentityConflict) Mergeable() bool {
	return e.Existing.Kind == construct.KindTopic && e.Requested.Kind == construct.KindTopic
}

// IdentityConstraintError is the caller-visible form of an identity conflict
// that was not resolved by merging (automerge disabled, or the colliding
// construct is not a topic).
type IdentityConstraintError struct {
	*BaseError
	Conflict *IdentityConflict
}

// NewIdentityConstraintError surfaces an unresolved conflict to the caller.
func NewIdentityConstraintError(conflict *IdentityConflict) *IdentityConstraintError {
	return &IdentityConstraintError{
		BaseError: NewBaseError(ErrorTypeIdentity, "identity constraint violated", conflict),
		Conflict:  conflict,
	}
}

// Model Errors

// ModelConstraintViolation is returned when an operation would break a TMDM
// invariant, such as merging two topics that reify different constructs.
type ModelConstraintViolation struct {
	*BaseError
	Construct construct.Ref
	Reason    string
}

// NewModelConstraintViolation reports why an operation on ref was rejected.
func NewModelConstraintViolation(ref construct.Ref, reason string) *ModelConstraintViolation {
	return &ModelConstraintViolation{
		BaseError: NewBaseError(ErrorTypeModel, fmt.Sprintf("%s: %s", ref, reason), nil),
		Construct: ref,
		Reason:    reason,
	}
}

// NewReifierConflict reports that target and source reify different constructs.
func NewReifierConflict(target, source, targetReified, sourceReified construct.Ref) *ModelConstraintViolation {
	return NewModelConstraintViolation(target,
		fmt.Sprintf("cannot merge %s: %s reifies %s and %s reifies %s", source, target, targetReified, source, sourceReified))
}

// ScopeConstraintViolation is returned by variant creation when the variant
// scope does not add a theme to the parent name scope.
type ScopeConstraintViolation struct {
	*BaseError
	Name   construct.Ref
	Themes []int64
}

// NewScopeConstraintViolation reports a variant scope that adds nothing to name.
func NewScopeConstraintViolation(name construct.Ref, themes []int64) *ScopeConstraintViolation {
	return &ScopeConstraintViolation{
		BaseError: NewBaseError(ErrorTypeScope,
			fmt.Sprintf("variant scope %v is not a true superset of the scope of %s", themes, name), nil),
		Name:   name,
		Themes: themes,
	}
}

// Storage Errors

// StorageError wraps a failure of the construct store. It is always fatal to
// the surrounding transaction.
type StorageError struct {
	*BaseError
	Op string
}

// NewStorageError wraps err from the store operation op.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{
		BaseError: NewBaseError(ErrorTypeStorage, op, err),
		Op:        op,
	}
}

// In-use Errors

// TopicInUse is returned when removing a topic that is still referenced.
type TopicInUse struct {
	*BaseError
	Topic construct.Ref
	Uses  []string
}

// NewTopicInUse reports the uses that keep topic from being removed.
func NewTopicInUse(topic construct.Ref, uses []string) *TopicInUse {
	return &TopicInUse{
		BaseError: NewBaseError(ErrorTypeInUse,
			fmt.Sprintf("%s is in use as %s", topic, strings.Join(uses, ", ")), nil),
		Topic: topic,
		Uses:  uses,
	}
}
