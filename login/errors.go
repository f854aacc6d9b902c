package login

import (
	"fmt"
	"strings"
)

// Steps of a login, in order.
const (
	StepDiscover = iota + 1
	StepAuthorize
	StepSubmitCredentials
	StepSubmitForm
	StepExchangeCode
)

var stepNames = map[int]string{
	StepDiscover:          "discover",
	StepAuthorize:         "authorize",
	StepSubmitCredentials: "submit credentials",
	StepSubmitForm:        "submit confirmation form",
	StepExchangeCode:      "exchange code",
}

// StepError reports which step of a login failed. Err is one of the
// internal/errors categories or the underlying transport error.
type StepError struct {
	Step       int
	StatusCode int
	Detail     string
	Err        error
}

func (e *StepError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "login step %d (%s) failed", e.Step, stepNames[e.Step])
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepError(step, status int, err error, format string, args ...any) *StepError {
	return &StepError{
		Step:       step,
		StatusCode: status,
		Detail:     fmt.Sprintf(format, args...),
		Err:        err,
	}
}
