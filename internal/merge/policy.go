package merge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConflict is matched by every *ConflictError.
var ErrConflict = errors.New("configuration conflict")

// Policy decides what happens when a later fragment replaces a scalar set by
// an earlier one.
type Policy int

const (
	// PolicyOverride lets the rightmost value win silently.
	PolicyOverride Policy = iota
	// PolicyReport lets the rightmost value win and records a Conflict.
	PolicyReport
	// PolicyStrict aborts the fold on the first conflict.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyOverride:
		return "override"
	case PolicyReport:
		return "report"
	case PolicyStrict:
		return "strict"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a policy name into a Policy. An empty name selects
// PolicyOverride.
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "override":
		return PolicyOverride, nil
	case "report":
		return PolicyReport, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyOverride, fmt.Errorf("unknown conflict policy %q (want override, report or strict)", name)
	}
}

// Conflict describes a scalar replaced during a fold.
type Conflict struct {
	// Path is the dotted key path of the replaced value.
	Path string
	// Previous names the fragment that set the old value.
	Previous string
	// Fragment names the fragment whose value won.
	Fragment string
	Old      any
	New      any
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: %s overrides %s (%v -> %v)", c.Path, label(c.Fragment), label(c.Previous), c.Old, c.New)
}

func label(name string) string {
	if name == "" {
		return "<unnamed>"
	}
	return name
}

// ConflictError is returned by Fold under PolicyStrict.
type ConflictError struct {
	Conflict Conflict
}

func (e *ConflictError) Error() string {
	return "configuration conflict at " + e.Conflict.String()
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
