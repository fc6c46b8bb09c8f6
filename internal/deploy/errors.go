package deploy

import (
	"fmt"
	"strings"

	"github.com/shoalproj/shoal/internal/preflight"
)

// RejectedError is a pre-commit failure: prerequisites were not met and no
// resource was touched. The report carries per-check remediation text.
type RejectedError struct {
	Report preflight.Report
}

func (e *RejectedError) Error() string {
	failed := e.Report.Failed()
	names := make([]string, len(failed))
	for i, c := range failed {
		names[i] = c.Name
	}
	return fmt.Sprintf("prerequisites not met: %s", strings.Join(names, ", "))
}

// ReadinessError is a post-commit failure: the instance started but a
// dependency never became healthy within the budget. Resources are left
// running for inspection.
type ReadinessError struct {
	Dependency string
	Err        error
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("%s never became healthy: %v", e.Dependency, e.Err)
}

func (e *ReadinessError) Unwrap() error { return e.Err }

// ProvisionError is a failure while creating or starting a container.
// PortInUse distinguishes bind conflicts; the operator fixes those
// differently from image or daemon problems.
type ProvisionError struct {
	Container string
	Err       error
}

func (e *ProvisionError) Error() string {
	if e.PortInUse() {
		return fmt.Sprintf("container %s: port already bound: %v", e.Container, e.Err)
	}
	return fmt.Sprintf("container %s: %v", e.Container, e.Err)
}

func (e *ProvisionError) Unwrap() error { return e.Err }

// PortInUse reports whether the failure was a host port conflict.
func (e *ProvisionError) PortInUse() bool {
	if e.Err == nil {
		return false
	}
	msg := e.Err.Error()
	return strings.Contains(msg, "port is already allocated") ||
		strings.Contains(msg, "address already in use")
}
