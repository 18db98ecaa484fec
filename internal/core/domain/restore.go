package domain

import (
	"fmt"
	"strings"
)

// RestoreMode decides the initial state of a switch after a restart.
type RestoreMode string

const (
	RESTORE_DEFAULT_OFF RestoreMode = "RESTORE_DEFAULT_OFF"
	RESTORE_DEFAULT_ON  RestoreMode = "RESTORE_DEFAULT_ON"
	ALWAYS_OFF          RestoreMode = "ALWAYS_OFF"
	ALWAYS_ON           RestoreMode = "ALWAYS_ON"
)

func ParseRestoreMode(text string) (RestoreMode, error) {
	if text == "" {
		return RESTORE_DEFAULT_OFF, nil
	}
	switch mode := RestoreMode(strings.ToUpper(text)); mode {
	case RESTORE_DEFAULT_OFF, RESTORE_DEFAULT_ON, ALWAYS_OFF, ALWAYS_ON:
		return mode, nil
	}
	return "", fmt.Errorf("unknown restore mode %q", text)
}

// Resolve returns the initial switch state given the persisted one, if any.
func (m RestoreMode) Resolve(stored *bool) bool {
	switch m {
	case ALWAYS_ON:
		return true
	case ALWAYS_OFF:
		return false
	case RESTORE_DEFAULT_ON:
		if stored != nil {
			return *stored
		}
		return true
	default:
		if stored != nil {
			return *stored
		}
		return false
	}
}
