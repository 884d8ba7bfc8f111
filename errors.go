package breeze

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of a save error
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeConcurrency   ErrorType = "concurrency"
	ErrorTypeStore         ErrorType = "store"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeTransaction   ErrorType = "transaction"
	ErrorTypeInternal      ErrorType = "internal"
)

// Error codes
const (
	// Configuration errors
	ErrCodeUnknownEntityType     = "UNKNOWN_ENTITY_TYPE"
	ErrCodeInvalidEntity         = "INVALID_ENTITY"
	ErrCodeMissingKeyProperty    = "MISSING_KEY_PROPERTY"
	ErrCodeKeyGeneratorMissing   = "KEY_GENERATOR_MISSING"
	ErrCodeOriginalValuesMissing = "ORIGINAL_VALUES_MISSING"
	ErrCodeKeyMutation           = "KEY_MUTATION"
	ErrCodeDependencyCycle       = "DEPENDENCY_CYCLE"
	ErrCodeUnresolvedTempKey     = "UNRESOLVED_TEMP_KEY"
	ErrCodeBundleTooLarge        = "BUNDLE_TOO_LARGE"

	// Concurrency errors
	ErrCodeConcurrencyViolation = "CONCURRENCY_VIOLATION"

	// Store errors
	ErrCodeInsertFailed    = "INSERT_FAILED"
	ErrCodeUpdateFailed    = "UPDATE_FAILED"
	ErrCodeDeleteFailed    = "DELETE_FAILED"
	ErrCodeKeyGenFailed    = "KEY_GENERATION_FAILED"
	ErrCodeCircuitOpen     = "CIRCUIT_OPEN"
	ErrCodeStoreStatement  = "STORE_STATEMENT_FAILED"
	ErrCodeValidationError = "VALIDATION_FAILED"

	// Transaction errors
	ErrCodeTransactionFailed = "TRANSACTION_FAILED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// SaveError is the error raised when a save bundle cannot be persisted.
type SaveError struct {
	Type           ErrorType      `json:"type"`
	Code           string         `json:"code"`
	Message        string         `json:"message"`
	EntityTypeName string         `json:"entityTypeName,omitempty"`
	State          EntityState    `json:"entityState,omitempty"`
	Entity         Entity         `json:"entity,omitempty"`
	EntityErrors   []EntityError  `json:"entityErrors,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Cause          error          `json:"-"`
}

func (e *SaveError) Error() string {
	if e.EntityTypeName != "" {
		if e.State != "" {
			return fmt.Sprintf("[%s:%s] %s entity %s: %s", e.Type, e.Code, e.State, e.EntityTypeName, e.Message)
		}
		return fmt.Sprintf("[%s:%s] entity %s: %s", e.Type, e.Code, e.EntityTypeName, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *SaveError) Unwrap() error {
	return e.Cause
}

// WithDetails adds details to a SaveError
func (e *SaveError) WithDetails(details map[string]any) *SaveError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to a SaveError
func (e *SaveError) WithDetail(key string, value any) *SaveError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause adds a cause to a SaveError
func (e *SaveError) WithCause(cause error) *SaveError {
	e.Cause = cause
	return e
}

// WithEntity attaches the offending entity and its change-state.
func (e *SaveError) WithEntity(info *EntityInfo) *SaveError {
	if info == nil {
		return e
	}
	e.Entity = info.Entity
	e.State = info.State
	if info.EntityType != nil {
		e.EntityTypeName = info.EntityType.QualifiedName()
	}
	return e
}

// WithEntityErrors appends per-entity errors.
func (e *SaveError) WithEntityErrors(errs ...EntityError) *SaveError {
	e.EntityErrors = append(e.EntityErrors, errs...)
	return e
}

// NewSaveError creates a new SaveError
func NewSaveError(errorType ErrorType, code, message string) *SaveError {
	return &SaveError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// IsSaveErrorType reports whether err wraps a SaveError of the given type.
func IsSaveErrorType(err error, errorType ErrorType) bool {
	var saveErr *SaveError
	if errors.As(err, &saveErr) {
		return saveErr.Type == errorType
	}
	return false
}

// NewUnknownEntityTypeError creates an error for an entity type name the metadata store cannot resolve.
func NewUnknownEntityTypeError(name string, cause error) *SaveError {
	err := NewSaveError(ErrorTypeConfiguration, ErrCodeUnknownEntityType,
		fmt.Sprintf("unable to locate entity type %q", name))
	err.EntityTypeName = name
	return err.WithCause(cause)
}

// NewInvalidEntityError creates an error for a malformed client entity.
func NewInvalidEntityError(index int, cause error) *SaveError {
	return NewSaveError(ErrorTypeConfiguration, ErrCodeInvalidEntity,
		fmt.Sprintf("entity at index %d is invalid: %v", index, cause)).
		WithDetail("index", index).
		WithCause(cause)
}

// NewKeyGeneratorMissingError creates an error for KeyGenerator keys without a configured provider.
func NewKeyGeneratorMissingError(info *EntityInfo) *SaveError {
	return NewSaveError(ErrorTypeConfiguration, ErrCodeKeyGeneratorMissing,
		"entity uses KeyGenerator keys but no key generator is configured").WithEntity(info)
}

// NewOriginalValuesMissingError creates an error for a Modified entity without an original values map.
func NewOriginalValuesMissingError(info *EntityInfo) *SaveError {
	return NewSaveError(ErrorTypeConfiguration, ErrCodeOriginalValuesMissing,
		"modified entity has no originalValuesMap and forceUpdate is not set").WithEntity(info)
}

// NewKeyMutationError creates an error for an update that would change a key property.
func NewKeyMutationError(info *EntityInfo, property string) *SaveError {
	return NewSaveError(ErrorTypeConfiguration, ErrCodeKeyMutation,
		fmt.Sprintf("key property %q cannot be changed", property)).
		WithEntity(info).
		WithDetail("property", property)
}

// NewConcurrencyError creates an optimistic concurrency violation for an update that did not hit exactly one row.
func NewConcurrencyError(info *EntityInfo, affected int64) *SaveError {
	err := NewSaveError(ErrorTypeConcurrency, ErrCodeConcurrencyViolation,
		fmt.Sprintf("optimistic concurrency check failed: %d rows affected", affected)).
		WithEntity(info).
		WithDetail("affectedRows", affected)
	return err.WithEntityErrors(EntityError{
		EntityTypeName: err.EntityTypeName,
		ErrorName:      ErrCodeConcurrencyViolation,
		ErrorMessage:   err.Message,
		KeyValues:      info.KeyValues(),
	})
}

// NewDependencyCycleError creates an error for foreign key cycles that cannot be ordered.
func NewDependencyCycleError(path []string) *SaveError {
	return NewSaveError(ErrorTypeConfiguration, ErrCodeDependencyCycle,
		fmt.Sprintf("foreign key dependency cycle: %v", path)).
		WithDetail("cycle", path)
}

// NewUnresolvedKeyError creates an error for a foreign key pointing at a temporary key that is not assigned yet.
func NewUnresolvedKeyError(info *EntityInfo, property string, tempValue any) *SaveError {
	return NewSaveError(ErrorTypeConfiguration, ErrCodeUnresolvedTempKey,
		fmt.Sprintf("foreign key %q references temporary key %v before it was assigned", property, tempValue)).
		WithEntity(info).
		WithDetail("property", property).
		WithDetail("tempValue", tempValue)
}

// NewBundleTooLargeError creates an error for bundles over the configured size.
func NewBundleTooLargeError(count, limit int) *SaveError {
	return NewSaveError(ErrorTypeConfiguration, ErrCodeBundleTooLarge,
		fmt.Sprintf("save bundle has %d entities, limit is %d", count, limit))
}

// NewStoreError creates a store error for a failed statement of one entity.
func NewStoreError(code string, info *EntityInfo, cause error) *SaveError {
	return NewSaveError(ErrorTypeStore, code, cause.Error()).WithEntity(info).WithCause(cause)
}

// NewTransactionError creates a transaction error
func NewTransactionError(message string, cause error) *SaveError {
	return &SaveError{
		Type:    ErrorTypeTransaction,
		Code:    ErrCodeTransactionFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *SaveError {
	return &SaveError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// StatementError carries the statement a row store failed to execute.
type StatementError struct {
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%v (statement: %s)", e.Err, e.Statement)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}
