//go:build !windows

package autopilot

import (
	"context"
	"errors"
	"runtime"
)

type unsupportedDriver struct{}

func newWindowDriver(ScriptLayout) WindowAutomationDriver { return unsupportedDriver{} }

func (unsupportedDriver) Run(ctx context.Context, identifier string) error {
	return &AutomationError{
		Step:   "platform",
		Detail: runtime.GOOS,
		Err:    errors.New("desktop automation requires a windows host"),
	}
}
