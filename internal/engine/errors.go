package engine

import (
	"fmt"
	"strings"
)

// TopologyError reports a blade whose slot does not match any bay
// defined on the chassis device type. It is fatal and non-retryable:
// the run aborts before any remote write for the host.
type TopologyError struct {
	Device string
	Slot   string
	Bays   []string
}

func (e *TopologyError) Error() string {
	return fmt.Sprintf("device %q: blade slot %q not found on chassis device type (bays: %s)",
		e.Device, e.Slot, strings.Join(e.Bays, ", "))
}

// ConflictError reports a uniqueness collision (IP, MAC, serial) that
// the anycast/scoping rules could not resolve. It is fatal for the
// affected entity only; the rest of the run continues.
type ConflictError struct {
	Entity string
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Entity, e.Key, e.Reason)
}
