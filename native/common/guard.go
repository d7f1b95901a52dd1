package common

import (
	"errors"
	"fmt"
)

// ErrModulePaused marks a call rejected because the module's mutations are
// administratively halted. Reads stay available while paused.
var ErrModulePaused = errors.New("native: module paused")

// PauseView reports which native modules are currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the named module is paused. A nil view or an
// empty module name leaves the call unguarded.
func Guard(view PauseView, module string) error {
	if view == nil || module == "" {
		return nil
	}
	if view.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}
