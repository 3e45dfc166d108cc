// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"tws-bridge/internal/models"
)

// Standard sentinel errors
var (
	ErrGatewayDisconnected = errors.New("gateway disconnected")
	ErrOrderNotFound       = errors.New("order not found in open orders")
	ErrTimeout             = errors.New("gateway acknowledgement timed out")
	ErrSessionLocked       = errors.New("trading session is locked")
	ErrInvalidOrder        = errors.New("invalid order")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDatabaseError       = errors.New("database error")
	ErrNoChanges           = errors.New("no changes requested")
)

// Machine-checkable rejection categories. Every user-visible failure carries
// one of these alongside the human-readable message.
const (
	CategoryValidation    = "VALIDATION"
	CategoryRiskGate      = "RISK_GATE"
	CategoryNotFound      = "NOT_FOUND"
	CategoryStateConflict = "STATE_CONFLICT"
	CategoryBroker        = "BROKER"
)

// ValidationError reports every structural rule an order request violates.
// It is returned before any gateway call is made.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", CategoryValidation, strings.Join(e.Errors, "; "))
}

// NewValidationError creates a ValidationError from the collected rule violations.
func NewValidationError(errs []string) *ValidationError {
	return &ValidationError{Errors: errs}
}

// RiskError represents a pre-trade rejection by the session guardrail.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("%s [%s]: %s (current: %.2f, limit: %.2f)",
		CategoryRiskGate, e.Rule, e.Message, e.Current, e.Limit)
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{
		Rule:    rule,
		Current: current,
		Limit:   limit,
		Message: message,
	}
}

// StateConflictError reports a modify or cancel attempted against an order
// whose live status does not allow it.
type StateConflictError struct {
	OrderID int64
	Status  models.OrderStatus
	Action  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s: cannot %s order %d in status %s",
		CategoryStateConflict, e.Action, e.OrderID, e.Status)
}

// NewStateConflictError creates a new StateConflictError.
func NewStateConflictError(orderID int64, status models.OrderStatus, action string) *StateConflictError {
	return &StateConflictError{OrderID: orderID, Status: status, Action: action}
}

// BrokerError represents a fatal error event from the gateway. Nonfatal
// informational codes are filtered at the source and never reach callers.
type BrokerError struct {
	OrderID int64
	Code    int
	Message string
	Err     error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%d] order %d: %s: %v", CategoryBroker, e.Code, e.OrderID, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%d] order %d: %s", CategoryBroker, e.Code, e.OrderID, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(orderID int64, code int, message string, err error) *BrokerError {
	return &BrokerError{OrderID: orderID, Code: code, Message: message, Err: err}
}

// PartialBracketError reports a bracket placement that failed after one or
// more legs were already acknowledged. The placed legs are not rolled back;
// the caller must reconcile against the gateway's open-order snapshot.
type PartialBracketError struct {
	CorrelationID string
	PlacedIDs     []int64
	FailedLeg     string
	Err           error
}

func (e *PartialBracketError) Error() string {
	return fmt.Sprintf("%s: bracket %s partially placed (acknowledged ids %v), %s leg failed: %v",
		CategoryBroker, e.CorrelationID, e.PlacedIDs, e.FailedLeg, e.Err)
}

func (e *PartialBracketError) Unwrap() error {
	return e.Err
}

// OrderError represents an error related to a single order operation.
type OrderError struct {
	OrderID int64
	Symbol  string
	Action  string
	Reason  string
	Err     error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%d] %s %s: %s: %v", e.OrderID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%d] %s %s: %s", e.OrderID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(orderID int64, symbol, action, reason string, err error) *OrderError {
	return &OrderError{OrderID: orderID, Symbol: symbol, Action: action, Reason: reason, Err: err}
}

// Category returns the machine-checkable category for an error, or the empty
// string for errors outside the rejection taxonomy.
func Category(err error) string {
	var ve *ValidationError
	var re *RiskError
	var sce *StateConflictError
	var be *BrokerError
	var pbe *PartialBracketError
	switch {
	case errors.As(err, &ve):
		return CategoryValidation
	case errors.As(err, &re):
		return CategoryRiskGate
	case errors.As(err, &sce):
		return CategoryStateConflict
	case errors.As(err, &be), errors.As(err, &pbe), errors.Is(err, ErrTimeout):
		return CategoryBroker
	case errors.Is(err, ErrOrderNotFound):
		return CategoryNotFound
	}
	return ""
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
