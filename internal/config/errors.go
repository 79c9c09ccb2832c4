package config

import (
	"errors"
	"fmt"
)

// ErrInvalid matches every configuration error:
//
//	if errors.Is(err, config.ErrInvalid) { ... }
var ErrInvalid = errors.New("configuration error")

// Error describes a configuration problem and names the offending entry.
type Error struct {
	Section string // e.g. "fan_managers", "controllers"
	Name    string // group setting, controller unit, model tag or device ref
	Err     error
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("config: %s: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("config: %s %q: %v", e.Section, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports true for ErrInvalid so callers need not know the concrete type.
func (e *Error) Is(target error) bool { return target == ErrInvalid }

// Errorf builds an *Error with a formatted cause.
func Errorf(section, name, format string, args ...any) *Error {
	return &Error{Section: section, Name: name, Err: fmt.Errorf(format, args...)}
}
