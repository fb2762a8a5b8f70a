// Package errors provides standardized error handling for the mtscore messaging core.
//
// # Error Classification
//
// Errors fall into three classes:
//
//   - Transient: backpressure and timing problems (ErrQueueFull, ErrTimeout). Retry later.
//   - Invalid: setup or call mistakes (ErrDuplicateName, ErrNotFound, ErrTypeMismatch,
//     ErrUnbound, ErrInvalidTransition). Do not retry.
//   - Fatal: conditions that must stop a connection or a process (ErrBindFailed,
//     ErrInvalidConfig).
//
// Registration and lookup never panic. They return one of the sentinels below wrapped
// with context, so errors.Is keeps working through the chain.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrappers attach a class explicitly:
//
//	errors.WrapTransient(err, "Mailbox", "Enqueue", "queue write")
//	errors.WrapInvalid(err, "ProvidedInterface", "AddCommand", "duplicate name check")
//	errors.WrapFatal(err, "RequiredInterface", "BindCommandsAndEvents", "required bindings")
//
// # Standard Error Variables
//
// Messaging core:
//
//	ErrDuplicateName, ErrNotFound, ErrUnbound, ErrTypeMismatch, ErrBindFailed,
//	ErrDisabled, ErrNoMailbox, ErrQueueFull, ErrMailboxClosed, ErrTimeout
//
// Class register:
//
//	ErrNotCreatable, ErrNoDefaultConstructor, ErrNoCopyConstructor
//
// Lifecycle and infrastructure:
//
//	ErrInvalidTransition, ErrNotStarted, ErrAlreadyStopped, ErrNoConnection,
//	ErrConnectionLost, ErrConnectionTimeout, ErrInvalidData, ErrInvalidConfig,
//	ErrMissingConfig
package errors
