// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
//
// Package logging builds the structured loggers used across the module.
// Components accept a *logiface.Logger[logiface.Event]; nil disables output.

package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the logger type accepted by every component.
type Logger = logiface.Logger[logiface.Event]

// New returns a JSON logger writing to w, enabled up to level.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// ParseLevel maps a level name such as "info" or "debug" to its value.
// "warn" and "error" are accepted as aliases.
func ParseLevel(name string) (logiface.Level, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "warn":
		return logiface.LevelWarning, nil
	case "error":
		return logiface.LevelError, nil
	case "off", "disabled", "none":
		return logiface.LevelDisabled, nil
	}
	for l := logiface.LevelEmergency; l <= logiface.LevelTrace; l++ {
		if l.String() == name {
			return l, nil
		}
	}
	return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", name)
}
