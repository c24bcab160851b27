// Package errors defines the coded error taxonomy shared by the relay components.
package errors

import (
	"errors"
	"fmt"
)

// Standard error codes for the application.
const (
	CodeUnknown      = "UNKNOWN"
	CodeConfig       = "CONFIG"
	CodeConnectivity = "CONNECTIVITY"
	CodeDestination  = "DESTINATION"
	CodeDelivery     = "DELIVERY"
	CodeStorage      = "STORAGE"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// codedError is the shared implementation behind every error type below.
type codedError struct {
	code    string
	message string
	err     error
}

func (e *codedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *codedError) Code() string {
	return e.code
}

func (e *codedError) Unwrap() error {
	return e.err
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if it doesn't have one.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// ConfigurationError reports missing or invalid settings. Fatal at startup.
type ConfigurationError struct{ codedError }

func NewConfigurationError(message string, cause error) error {
	return &ConfigurationError{codedError{code: CodeConfig, message: message, err: cause}}
}

// ConnectivityError reports an unreachable or unauthenticated transport.
type ConnectivityError struct{ codedError }

func NewConnectivityError(message string, cause error) error {
	return &ConnectivityError{codedError{code: CodeConnectivity, message: message, err: cause}}
}

// DestinationError reports an invalid or unauthorized forwarding target.
// Hint carries the remediation shown to the operator.
type DestinationError struct {
	codedError
	Hint string
}

func NewDestinationError(message, hint string, cause error) error {
	return &DestinationError{codedError: codedError{code: CodeDestination, message: message, err: cause}, Hint: hint}
}

// TransientDeliveryError reports a single failed delivery attempt that may
// succeed when retried.
type TransientDeliveryError struct{ codedError }

func NewTransientDeliveryError(message string, cause error) error {
	return &TransientDeliveryError{codedError{code: CodeDelivery, message: message, err: cause}}
}

// StorageError reports a ledger or journal read/write failure.
type StorageError struct{ codedError }

func NewStorageError(message string, cause error) error {
	return &StorageError{codedError{code: CodeStorage, message: message, err: cause}}
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsConnectivity(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

func IsDestination(err error) bool {
	var target *DestinationError
	return errors.As(err, &target)
}

func IsTransientDelivery(err error) bool {
	var target *TransientDeliveryError
	return errors.As(err, &target)
}

func IsStorage(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}
