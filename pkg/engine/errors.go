package engine

import (
	"errors"
	"fmt"
)

// FailureKind classifies what broke during a deployment run.
type FailureKind string

const (
	// FailureResolution indicates an upstream resource failed to provision.
	// The cause propagates through every deferred value derived from it.
	FailureResolution FailureKind = "resolution"

	// FailureIO indicates a local file was unreadable or a network upload
	// failed. The asset publisher aborts fast; earlier uploads in the batch
	// are not rolled back.
	FailureIO FailureKind = "io"

	// FailureQuery indicates an external control-plane query produced no
	// usable output.
	FailureQuery FailureKind = "query"

	// FailurePolicy indicates the policy gate rejected the planned stack.
	FailurePolicy FailureKind = "policy"

	// FailureState indicates the deployment state store misbehaved.
	FailureState FailureKind = "state"
)

// DeployError is a classified deployment failure with resource context.
type DeployError struct {
	// Kind is the failure classification.
	Kind FailureKind

	// Resource is the logical resource name involved, if any.
	Resource string

	// Op is the operation being performed when the failure occurred.
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *DeployError) Error() string {
	switch {
	case e.Resource != "" && e.Op != "":
		return fmt.Sprintf("[%s] %s on %s: %v", e.Kind, e.Op, e.Resource, e.Err)
	case e.Resource != "":
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Resource, e.Err)
	case e.Op != "":
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}
}

// Unwrap returns the underlying cause for error chain inspection.
func (e *DeployError) Unwrap() error { return e.Err }

// NewResolutionError wraps a provisioning failure for the named resource.
func NewResolutionError(resource string, err error) *DeployError {
	return &DeployError{Kind: FailureResolution, Resource: resource, Err: err}
}

// NewIOError wraps a file or upload failure.
func NewIOError(op string, err error) *DeployError {
	return &DeployError{Kind: FailureIO, Op: op, Err: err}
}

// NewQueryError wraps a control-plane query failure.
func NewQueryError(op string, err error) *DeployError {
	return &DeployError{Kind: FailureQuery, Op: op, Err: err}
}

// NewPolicyError wraps a policy gate rejection.
func NewPolicyError(err error) *DeployError {
	return &DeployError{Kind: FailurePolicy, Err: err}
}

// NewStateError wraps a state store failure.
func NewStateError(op string, err error) *DeployError {
	return &DeployError{Kind: FailureState, Op: op, Err: err}
}

// KindOf returns the failure kind of err, or an empty kind when err is not a
// classified deployment error.
func KindOf(err error) FailureKind {
	var de *DeployError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsResolutionFailure reports whether err is classified as a provisioning
// resolution failure.
func IsResolutionFailure(err error) bool { return KindOf(err) == FailureResolution }
