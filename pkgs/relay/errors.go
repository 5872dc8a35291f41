package relay

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable machine-readable rejection code for client branching
type Code string

const (
	CodeValidation                Code = "VALIDATION_ERROR"
	CodePollEnded                 Code = "POLL_ENDED"
	CodeCapacityReached           Code = "CAPACITY_REACHED"
	CodeAlreadyVoted              Code = "ALREADY_VOTED"
	CodeInvalidSignature          Code = "INVALID_SIGNATURE"
	CodeInvalidWhitelistSignature Code = "INVALID_WHITELIST_SIGNATURE"
	CodeWhitelistExpired          Code = "WHITELIST_EXPIRED"
	CodeNotWhitelisted            Code = "NOT_WHITELISTED"
	CodeDuplicateRequest          Code = "DUPLICATE_REQUEST"
	CodeInsufficientAllowance     Code = "INSUFFICIENT_ALLOWANCE"
	CodeRelayerUnderfunded        Code = "RELAYER_UNDERFUNDED"
	CodeRelayerUnauthorized       Code = "RELAYER_UNAUTHORIZED"
	CodeSubmissionFailed          Code = "SUBMISSION_FAILED"
	CodeUpstreamUnavailable       Code = "UPSTREAM_UNAVAILABLE"
	CodeTimeout                   Code = "TIMEOUT"
)

// Error is a rejection with a stable code, an HTTP status, and a
// human-readable message. Details carries per-field findings for structural
// validation failures. Internal causes are wrapped but never leak into the
// message shown to clients.
type Error struct {
	Code    Code
	Status  int
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a *relay.Error from an error chain, or wraps an unknown
// error as an internal submission failure
func AsError(err error) *Error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr
	}
	return &Error{
		Code:    CodeSubmissionFailed,
		Status:  http.StatusInternalServerError,
		Message: "Internal error while relaying vote",
		Err:     err,
	}
}

func newError(code Code, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// ErrValidation lists every missing or malformed field of a request
func ErrValidation(details []string) *Error {
	e := newError(CodeValidation, http.StatusBadRequest, "Missing or malformed parameters")
	e.Details = details
	return e
}

func ErrPollEnded() *Error {
	return newError(CodePollEnded, http.StatusBadRequest, "Poll has ended")
}

func ErrCapacityReached() *Error {
	return newError(CodeCapacityReached, http.StatusBadRequest, "Maximum number of voters has been reached")
}

func ErrAlreadyVoted() *Error {
	return newError(CodeAlreadyVoted, http.StatusBadRequest, "You have already voted in this poll")
}

func ErrInvalidSignature() *Error {
	return newError(CodeInvalidSignature, http.StatusBadRequest, "Invalid vote signature")
}

func ErrInvalidWhitelistSignature() *Error {
	return newError(CodeInvalidWhitelistSignature, http.StatusBadRequest, "Invalid whitelist signature")
}

func ErrWhitelistExpired() *Error {
	return newError(CodeWhitelistExpired, http.StatusBadRequest, "Whitelist approval has expired")
}

func ErrNotWhitelisted() *Error {
	return newError(CodeNotWhitelisted, http.StatusBadRequest, "Voter is not whitelisted for this poll")
}

// ErrDuplicateRequest reports that an identical vote is already in flight
func ErrDuplicateRequest() *Error {
	return newError(CodeDuplicateRequest, http.StatusConflict, "An identical vote is already being processed")
}

func ErrInsufficientAllowance(required, available string) *Error {
	e := newError(CodeInsufficientAllowance, http.StatusPaymentRequired,
		"Poll creator has insufficient funds for gas reimbursement")
	e.Details = []string{
		fmt.Sprintf("required: %s", required),
		fmt.Sprintf("available: %s", available),
	}
	return e
}

func ErrRelayerUnderfunded() *Error {
	return newError(CodeRelayerUnderfunded, http.StatusInternalServerError, "Relayer has insufficient funds")
}

func ErrRelayerUnauthorized() *Error {
	return newError(CodeRelayerUnauthorized, http.StatusInternalServerError, "Relayer not authorized for this contract")
}

// ErrSubmissionFailed reports retry exhaustion while broadcasting. Network
// failures are retryable by the caller (503), contract-level reverts are not
// (500).
func ErrSubmissionFailed(err error, retryable bool) *Error {
	status := http.StatusInternalServerError
	message := "Transaction rejected by the network"
	if retryable {
		status = http.StatusServiceUnavailable
		message = "Failed to submit transaction, please try again"
	}
	e := newError(CodeSubmissionFailed, status, message)
	e.Err = err
	return e
}

// ErrUpstream reports a read-side RPC failure after bounded retries
func ErrUpstream(err error) *Error {
	e := newError(CodeUpstreamUnavailable, http.StatusServiceUnavailable, "Blockchain node unavailable, please try again")
	e.Err = err
	return e
}

// ErrTimeout reports that the per-request deadline elapsed
func ErrTimeout(err error) *Error {
	e := newError(CodeTimeout, http.StatusServiceUnavailable, "Request timed out, please try again")
	e.Err = err
	return e
}
