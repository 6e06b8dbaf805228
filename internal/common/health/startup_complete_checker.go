package health

import "errors"

// StartupCompleteChecker reports unhealthy until MarkComplete is called,
// keeping the service out of rotation while it is still initialising.
type StartupCompleteChecker struct {
	complete bool
}

func NewStartupCompleteChecker() *StartupCompleteChecker {
	return &StartupCompleteChecker{complete: false}
}

func (checker *StartupCompleteChecker) Check() error {
	if checker.complete {
		return nil
	}
	return errors.New("startup not complete")
}

func (checker *StartupCompleteChecker) MarkComplete() {
	checker.complete = true
}
