// Package businessflow contains the automation, dispatch and reconciliation workflows
package businessflow

import (
	"errors"
	"fmt"

	"github.com/amirphl/wedding-automations/app/services"
)

// Business flow error constants
var (
	// Error kinds
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conditional write lost")
	ErrDeliveryTimeout = errors.New("delivery timeout")

	// Validation errors
	ErrProviderMessageIDRequired = fmt.Errorf("%w: provider message id is required", ErrValidation)
	ErrTenantIDRequired          = fmt.Errorf("%w: tenant id is required", ErrValidation)
	ErrInvalidAutomationType     = fmt.Errorf("%w: invalid automation type", ErrValidation)
	ErrInvalidTimeZone           = fmt.Errorf("%w: invalid time zone", ErrValidation)
	ErrScheduledAtRequired       = fmt.Errorf("%w: scheduled time is required", ErrValidation)
	ErrTemplateRefRequired       = fmt.Errorf("%w: template reference is required", ErrValidation)

	// Lookup errors
	ErrAutomationNotFound = fmt.Errorf("automation %w", ErrNotFound)
	ErrSendRecordNotFound = fmt.Errorf("send record %w", ErrNotFound)
	ErrTenantNotFound     = fmt.Errorf("tenant %w", ErrNotFound)

	// State errors
	ErrAutomationNotPending = errors.New("automation is not pending")
	ErrSendRecordExists     = errors.New("send record already exists for recipient")
	ErrDispatchDeferred     = errors.New("dispatch deferred")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// DispatchError is the synchronous failure of one recipient's dispatch
type DispatchError struct {
	RecipientID  uint
	Address      string
	SendRecordID *uint
	Code         string
	Message      string
	Err          error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to recipient %d failed: %s (%s)", e.RecipientID, e.Message, e.Code)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

func IsSendRecordNotFound(err error) bool {
	return errors.Is(err, ErrSendRecordNotFound)
}

func IsTenantNotFound(err error) bool {
	return errors.Is(err, ErrTenantNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsAutomationNotPending(err error) bool {
	return errors.Is(err, ErrAutomationNotPending)
}

func IsDispatchDeferred(err error) bool {
	return errors.Is(err, ErrDispatchDeferred)
}

// IsProviderError reports whether err carries a provider rejection
func IsProviderError(err error) bool {
	var perr *services.ProviderError
	return errors.As(err, &perr)
}

// AsDispatchError unwraps a *DispatchError from err
func AsDispatchError(err error) (*DispatchError, bool) {
	var derr *DispatchError
	if errors.As(err, &derr) {
		return derr, true
	}
	return nil, false
}
