package datastore

import (
	"fmt"

	"github.com/goliatone/go-errors"
)

// Text codes attached to errors raised by the datastore, the cache and the
// transaction layer. Callers match on them with the Is* helpers below.
const (
	TextCodeIllegalState          = "ILLEGAL_STATE"
	TextCodeConstraintViolation   = "CONSTRAINT_VIOLATION"
	TextCodeStoreUnavailable      = "STORE_UNAVAILABLE"
	TextCodeTransactionManagement = "TRANSACTION_MANAGEMENT"
	TextCodeNotFound              = "ENTITY_NOT_FOUND"
	TextCodeUnknownType           = "UNKNOWN_ENTITY_TYPE"
	TextCodeTransactionCompleted  = "TRANSACTION_COMPLETED"
)

func NewIllegalState(message string) *errors.Error {
	return errors.New(message, errors.CategoryOperation).WithTextCode(TextCodeIllegalState)
}

func NewConstraintViolation(ref Ref, source error) *errors.Error {
	msg := fmt.Sprintf("constraint violation for %s", ref)
	if source == nil {
		return errors.New(msg, errors.CategoryConflict).
			WithTextCode(TextCodeConstraintViolation).
			WithMetadata(refMetadata(ref))
	}
	return errors.Wrap(source, errors.CategoryConflict, msg).
		WithTextCode(TextCodeConstraintViolation).
		WithMetadata(refMetadata(ref))
}

func NewStoreUnavailable(operation string, source error) *errors.Error {
	msg := fmt.Sprintf("datastore unavailable during %s", operation)
	if source == nil {
		return errors.New(msg, errors.CategoryExternal).WithTextCode(TextCodeStoreUnavailable)
	}
	return errors.Wrap(source, errors.CategoryExternal, msg).WithTextCode(TextCodeStoreUnavailable)
}

func NewTransactionManagement(message string) *errors.Error {
	return errors.New(message, errors.CategoryInternal).WithTextCode(TextCodeTransactionManagement)
}

func NewNotFound(ref Ref) *errors.Error {
	return errors.New(fmt.Sprintf("entity %s not found", ref), errors.CategoryNotFound).
		WithTextCode(TextCodeNotFound).
		WithMetadata(refMetadata(ref))
}

func NewUnknownType(entityType string) *errors.Error {
	return errors.New(fmt.Sprintf("entity type %q is not registered", entityType), errors.CategoryBadInput).
		WithTextCode(TextCodeUnknownType).
		WithMetadata(map[string]any{"entity_type": entityType})
}

func NewTransactionCompleted() *errors.Error {
	return errors.New("transaction already completed", errors.CategoryOperation).
		WithTextCode(TextCodeTransactionCompleted)
}

func IsIllegalState(err error) bool          { return HasTextCode(err, TextCodeIllegalState) }
func IsConstraintViolation(err error) bool   { return HasTextCode(err, TextCodeConstraintViolation) }
func IsStoreUnavailable(err error) bool      { return HasTextCode(err, TextCodeStoreUnavailable) }
func IsTransactionManagement(err error) bool { return HasTextCode(err, TextCodeTransactionManagement) }
func IsNotFound(err error) bool              { return HasTextCode(err, TextCodeNotFound) }
func IsUnknownType(err error) bool           { return HasTextCode(err, TextCodeUnknownType) }
func IsTransactionCompleted(err error) bool  { return HasTextCode(err, TextCodeTransactionCompleted) }

// HasTextCode reports whether any *errors.Error in the chain of err carries code.
func HasTextCode(err error, code string) bool {
	for err != nil {
		var e *errors.Error
		if !errors.As(err, &e) {
			return false
		}
		if e.TextCode == code {
			return true
		}
		err = e.Source
	}
	return false
}

func refMetadata(ref Ref) map[string]any {
	return map[string]any{"entity_type": ref.Type, "entity_key": ref.Key}
}
