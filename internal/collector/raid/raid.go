// Package raid enumerates physical drives behind hardware RAID controllers
// through their vendor management CLIs. The CLIs are opaque data sources:
// this package only owns the invocation and output-parsing contract.
//
// Error taxonomy matters here. A missing tool or a host without controllers
// is ErrUnavailable and benign. Output that is present but does not match
// the expected schema is a *ParseError and must be surfaced prominently,
// because a silently dropped parse could hide a drive that should have been
// erase-eligible, or worse, misclassify one.
package raid

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable signals an absent controller CLI or a host without
	// RAID hardware. Not an error condition for the reconciler.
	ErrUnavailable = errors.New("raid adapter unavailable")

	// ErrJBODUnsupported is returned by SetJBOD when the controller
	// firmware rejects the jbod command.
	ErrJBODUnsupported = errors.New("controller does not support jbod")
)

// ParseError reports controller CLI output that is present but does not
// match the expected schema.
type ParseError struct {
	Tool    string
	Context string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse %s: %v", e.Tool, e.Context, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Adapter is one controller-management CLI.
type Adapter interface {
	Name() string
	Collect(ctx context.Context) (*Snapshot, error)
}

// Adapters builds the adapter set for the configured CLI paths. An empty
// path disables that adapter.
func Adapters(storcliPath, sas3ircuPath string, sudo bool) []Adapter {
	adapters := make([]Adapter, 0, 2)
	if storcliPath != "" {
		adapters = append(adapters, NewStorcli(storcliPath, sudo))
	}
	if sas3ircuPath != "" {
		adapters = append(adapters, NewSas3ircu(sas3ircuPath, sudo))
	}
	return adapters
}
