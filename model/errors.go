package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	InternalError      = "Internal Error"
	GenericSubmitError = "Transaction failed, please try again"
)

// BuildError means a required call could not be populated. The bundling
// attempt is dropped and retried on the next rebuild.
type BuildError struct {
	Call   CallLabel
	Reason string
	Err    error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot build %s call: %s: %v", e.Call, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot build %s call: %s", e.Call, e.Reason)
}

func (e *BuildError) Unwrap() error { return e.Err }

// EstimationError is returned when the simulation reverted or its result could
// not be decoded. It is never treated as a zero cost.
type EstimationError struct {
	Reason string
	Err    error
}

func (e *EstimationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fee estimation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("fee estimation failed: %s", e.Reason)
}

func (e *EstimationError) Unwrap() error { return e.Err }

// SigningRejected is returned when the owner declined to sign.
type SigningRejected struct {
	Err error
}

func (e *SigningRejected) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signing rejected: %v", e.Err)
	}
	return "signing rejected"
}

func (e *SigningRejected) Unwrap() error { return e.Err }

// RelayError carries the relay's diagnostic message for a task that ended
// Reverted or Cancelled.
type RelayError struct {
	TaskID  string
	State   TaskState
	Message string
}

func (e *RelayError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no message from relay"
	}
	return fmt.Sprintf("relay task %s %s: %s", e.TaskID, strings.ToLower(string(e.State)), msg)
}

// NetworkError is a transport level failure talking to the relay. It is never
// retried automatically to avoid duplicate submissions.
type NetworkError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("relay %s: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("relay %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("relay %s failed", e.Op)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

var (
	reasonStringRe = regexp.MustCompile(`reverted with reason string '([^']*)'`)
	revertPrefixes = []string{
		"Error: ",
		"VM Exception while processing transaction: ",
		"execution reverted: ",
		"execution reverted",
		"reverted: ",
	}
)

// SanitizeError turns any error into the single line shown to a user, with
// the usual revert boilerplate removed.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	var relayErr *RelayError
	if errors.As(err, &relayErr) && relayErr.Message != "" {
		return sanitizeMessage(relayErr.Message)
	}

	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return GenericSubmitError
	}

	return sanitizeMessage(err.Error())
}

func sanitizeMessage(msg string) string {
	if i := strings.IndexAny(msg, "\r\n"); i >= 0 {
		msg = msg[:i]
	}

	if m := reasonStringRe.FindStringSubmatch(msg); len(m) == 2 {
		msg = m[1]
	}

	// boilerplate can show up anywhere once errors get wrapped
	for _, prefix := range revertPrefixes {
		if i := strings.Index(msg, prefix); i >= 0 {
			msg = msg[i+len(prefix):]
		}
	}

	msg = strings.Trim(strings.TrimSpace(msg), `"'`)
	if msg == "" {
		return GenericSubmitError
	}
	return msg
}
