// Package apperr defines the error categories shared by the weather, detector,
// assistant and market pipelines.
//
// Error taxonomy
//
//	ProviderError – an external service (weather API, chat API) failed, returned an
//	                error status, or answered with a payload we could not use.
//	                Recoverable; shown to the user.
//
//	InputError    – a user-supplied file or field is unusable (corrupt image, empty
//	                prompt, unknown commodity). Recoverable; the user re-enters it.
//
//	NotReadyError – a dependent resource (the classifier model) is not initialized.
//	                Recoverable once the resource has been loaded.
//
//	ModelError    – the model architecture and its weights or labels disagree.
//	                Fatal to classification; never converted into a prediction.
//
// Everything else is a plain Go error wrapped with fmt.Errorf("context: %w", err).
package apperr

import (
	"errors"
	"fmt"
)

// ProviderError reports a failure of an external data or completion provider.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider error: %v", e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Provider wraps err as a ProviderError for the named provider.
func Provider(name string, err error) error {
	return &ProviderError{Provider: name, Err: err}
}

// Providerf creates a formatted ProviderError.
func Providerf(name, format string, args ...any) error {
	return &ProviderError{Provider: name, Err: fmt.Errorf(format, args...)}
}

// InputError represents an unusable user-supplied value.
type InputError struct {
	Message string
	Err     error
}

func (e *InputError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Input creates an InputError with the given message.
func Input(msg string) error { return &InputError{Message: msg} }

// Inputf creates a formatted InputError.
func Inputf(format string, args ...any) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// WrapInput attaches a user-facing message to an underlying cause.
func WrapInput(msg string, err error) error { return &InputError{Message: msg, Err: err} }

// NotReadyError reports that a resource has not been initialized yet.
type NotReadyError struct {
	Resource string
	Err      error
}

func (e *NotReadyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s is not ready", e.Resource)
	}
	return fmt.Sprintf("%s is not ready: %v", e.Resource, e.Err)
}

func (e *NotReadyError) Unwrap() error { return e.Err }

// NotReady creates a NotReadyError for resource, optionally carrying the cause.
func NotReady(resource string, cause error) error {
	return &NotReadyError{Resource: resource, Err: cause}
}

// ModelError reports an architecture/weights mismatch.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return fmt.Sprintf("model error: %v", e.Err) }

func (e *ModelError) Unwrap() error { return e.Err }

// Modelf creates a formatted ModelError.
func Modelf(format string, args ...any) error {
	return &ModelError{Err: fmt.Errorf(format, args...)}
}

// IsProvider reports whether err is (or wraps) a *ProviderError.
func IsProvider(err error) bool {
	var e *ProviderError
	return errors.As(err, &e)
}

// IsInput reports whether err is (or wraps) an *InputError.
func IsInput(err error) bool {
	var e *InputError
	return errors.As(err, &e)
}

// IsNotReady reports whether err is (or wraps) a *NotReadyError.
func IsNotReady(err error) bool {
	var e *NotReadyError
	return errors.As(err, &e)
}

// IsModel reports whether err is (or wraps) a *ModelError.
func IsModel(err error) bool {
	var e *ModelError
	return errors.As(err, &e)
}
