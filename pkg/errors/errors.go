package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Allocation and ledger conflicts. Callers must re-read state before acting again.
	CodeStallNotAvailable       Code = "STALL_NOT_AVAILABLE"
	CodeStallConflict           Code = "STALL_CONFLICT"
	CodeSessionAlreadyStarted   Code = "SESSION_ALREADY_STARTED"
	CodeInstallmentLocked       Code = "INSTALLMENT_LOCKED"
	CodeInstallmentPaid         Code = "INSTALLMENT_ALREADY_PAID"
	CodeFeeAlreadyGenerated     Code = "FEE_ALREADY_GENERATED"
	CodeVendorAlreadyAssigned   Code = "VENDOR_ALREADY_ASSIGNED"
	CodeInsufficientCredit      Code = "INSUFFICIENT_CREDIT"
	CodeLedgerMismatch          Code = "LEDGER_MISMATCH"
	CodeInvalidPhase            Code = "INVALID_PHASE"
	CodeWalletNotFound          Code = "WALLET_NOT_FOUND"
	CodeStallNotFound           Code = "STALL_NOT_FOUND"
	CodeVendorNotFound          Code = "VENDOR_NOT_FOUND"
	CodeMarketNotFound          Code = "MARKET_NOT_FOUND"
	CodeSessionNotFound         Code = "SESSION_NOT_FOUND"
	CodeScheduleNotFound        Code = "SCHEDULE_NOT_FOUND"
	CodeInvalidAmount           Code = "INVALID_AMOUNT"
	CodeInvalidInstallmentCount Code = "INVALID_INSTALLMENT_COUNT"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func conflictMeta(msg string) Metadata {
	return Metadata{HTTPStatus: http.StatusConflict, PublicMessage: msg, DetailsAllowed: true}
}

func notFoundMeta(msg string) Metadata {
	return Metadata{HTTPStatus: http.StatusNotFound, PublicMessage: msg}
}

func validationMeta(msg string) Metadata {
	return Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: msg, DetailsAllowed: true}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "conflict detected",
		DetailsAllowed: false,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeIdempotency: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "idempotency key reused",
		DetailsAllowed: true,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},

	CodeStallNotAvailable:     conflictMeta("stall not available"),
	CodeStallConflict:         conflictMeta("stall bound to another vendor"),
	CodeSessionAlreadyStarted: conflictMeta("market day already started"),
	CodeInstallmentLocked:     conflictMeta("an earlier installment is still unpaid"),
	CodeInstallmentPaid:       conflictMeta("installment already paid"),
	CodeFeeAlreadyGenerated:   conflictMeta("annual fee already generated"),
	CodeVendorAlreadyAssigned: conflictMeta("vendor already occupies a stall today"),
	CodeInsufficientCredit:    conflictMeta("insufficient wallet credit"),
	CodeLedgerMismatch:        conflictMeta("wallet balance does not match ledger"),
	CodeInvalidPhase: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		PublicMessage:  "operation not allowed in the current market day phase",
		DetailsAllowed: true,
	},

	CodeWalletNotFound:   notFoundMeta("wallet not found"),
	CodeStallNotFound:    notFoundMeta("stall not found"),
	CodeVendorNotFound:   notFoundMeta("vendor not found"),
	CodeMarketNotFound:   notFoundMeta("market not found"),
	CodeSessionNotFound:  notFoundMeta("market day not started"),
	CodeScheduleNotFound: notFoundMeta("fee schedule not found"),

	CodeInvalidAmount:           validationMeta("invalid amount"),
	CodeInvalidInstallmentCount: validationMeta("invalid installment count"),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is matches another *Error by code, so errors.Is(err, errors.New(CodeStallConflict, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.code == t.code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
