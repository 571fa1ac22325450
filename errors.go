// errors.go: Error codes for the Aether data-acquisition core
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package aether

// Error codes for Aether operations. Every public entry point returns errors
// carrying one of these codes (github.com/agilira/go-errors), so callers can
// branch on failure class without string matching.
const (
	// Caller input.
	ErrCodeNilValue               = "AETHER_NIL_VALUE"
	ErrCodeInvalidValue           = "AETHER_INVALID_VALUE"
	ErrCodeInvalidString          = "AETHER_INVALID_STRING"
	ErrCodeEmptyQueue             = "AETHER_EMPTY_QUEUE"
	ErrCodeNoDataRequested        = "AETHER_NO_DATA_REQUESTED"
	ErrCodeDuplicateDataRequested = "AETHER_DUPLICATE_DATA_REQUESTED"
	ErrCodeTooMuchDataRequested   = "AETHER_TOO_MUCH_DATA_REQUESTED"
	ErrCodeMissingCallback        = "AETHER_MISSING_CALLBACK"

	// State violations.
	ErrCodeContextActive           = "AETHER_CTX_ACTIVE"
	ErrCodeContextNotActive        = "AETHER_CTX_NOT_ACTIVE"
	ErrCodeDriverInUse             = "AETHER_DRIVER_IN_USE"
	ErrCodeDriverAlreadyRegistered = "AETHER_DRIVER_ALREADY_REGISTERED"
	ErrCodeDriverNotRegistered     = "AETHER_DRIVER_NOT_REGISTERED"
	ErrCodeUnknownDriver           = "AETHER_UNKNOWN_DRIVER"
	ErrCodeHubShutdown             = "AETHER_HUB_SHUTDOWN"

	// Capability mismatches.
	ErrCodePeriodUnsupported  = "AETHER_PERIOD_UNSUPPORTED"
	ErrCodeDataIDDoesNotExist = "AETHER_DATA_ID_DOES_NOT_EXIST"
	ErrCodeDevDoesNotExist    = "AETHER_DEV_DOES_NOT_EXIST"
	ErrCodeConflictingDrivers = "AETHER_CONFLICTING_DRIVERS"

	// Driver and I/O failures.
	ErrCodeDriverFail = "AETHER_DRIVER_FAIL"
	ErrCodeIOError    = "AETHER_IO_ERROR"

	// Cancellation.
	ErrCodeInterrupted = "AETHER_INTERRUPTED"

	// Config and schema files.
	ErrCodeInvalidConfig = "AETHER_INVALID_CONFIG"
	ErrCodeInvalidSchema = "AETHER_INVALID_SCHEMA"

	// Event log.
	ErrCodeEventLogError = "AETHER_EVENT_LOG_ERROR"
)
