// Package wserr provides the structured error kinds used across worldcore.
//
// Construction and lookup errors are surfaced to callers (wrapped with one
// of the Codes below); per-tick failures (reloot, timer resolution, script
// events) are logged and swallowed by their callers so that one bad form
// cannot freeze the world.
package wserr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error kind.
type Code string

const (
	// CodeDuplicateForm: add_form with an ID already present (skip_checks=false).
	CodeDuplicateForm Code = "DUPLICATE_FORM"
	// CodeBaseRecordMissing: a ChangeForm references an absent ESPM record.
	CodeBaseRecordMissing Code = "BASE_RECORD_MISSING"
	// CodeCastFailed: a ChangeForm of REFR/ACHR type paired with a non-ObjectReference instance.
	CodeCastFailed Code = "CAST_FAILED"
	// CodeUnknownChangeFormType: rec_type not in {REFR, ACHR}.
	CodeUnknownChangeFormType Code = "UNKNOWN_CHANGE_FORM_TYPE"
	// CodeMissingAttachment: ESPM or ESPM cache accessed when none attached.
	CodeMissingAttachment Code = "MISSING_ATTACHMENT"
	// CodeScriptStorageMissing: VM requested without attaching storage.
	CodeScriptStorageMissing Code = "SCRIPT_STORAGE_MISSING"
	// CodeScriptLoadFailed: script listed by storage but get_script returned empty.
	CodeScriptLoadFailed Code = "SCRIPT_LOAD_FAILED"
	// CodeVmException: routed to the script exception handler, never propagated.
	CodeVmException Code = "VM_EXCEPTION"
	// CodeNotFound: a form id or index does not resolve to a live form.
	CodeNotFound Code = "NOT_FOUND"
	// CodeWrongVariant: a typed accessor was used against a form of a different variant.
	CodeWrongVariant Code = "WRONG_VARIANT"
	// CodeNotAttached: an actor id is not bound to any connected user.
	CodeNotAttached Code = "NOT_ATTACHED"
)

// Error is a worldcore error carrying a machine-readable Code.
type Error struct {
	Code Code
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

// Unwrap allows errors.Is/errors.As to see through to a wrapped cause.
func (e *Error) Unwrap() error { return e.err }

// New builds an Error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, msg: msg}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error with the given code, message, and wrapped cause.
func Wrap(code Code, msg string, cause error) error {
	return &Error{Code: code, msg: msg, err: cause}
}

// CodeOf returns the Code carried by err, or CodeUnknown-equivalent ("")
// if err is nil or not one of ours.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
