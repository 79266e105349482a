package control

import "errors"

var (
	// ErrTerminationRequested is the cancellation cause seen by an entry point
	// once its node was asked to terminate.
	ErrTerminationRequested = errors.New("termination requested")
	// ErrAborted is the cancellation cause once the node is aborting.
	ErrAborted = errors.New("aborted")

	ErrDisposeKeyMismatch = errors.New("dispose key does not match node")
	ErrPayloadBound       = errors.New("payload is already bound to a node")
	ErrNodeHasPayload     = errors.New("node already has a payload")
	ErrSupervisorPayload  = errors.New("supervisor cannot carry a payload")
	ErrSupervisorRunning  = errors.New("supervisor is running, children are frozen")
	ErrAlreadyStarted     = errors.New("supervisor already started")
	ErrDuplicateChild     = errors.New("child already registered")
	ErrCycle              = errors.New("supervisor cannot supervise one of its ancestors")
	ErrNilChild           = errors.New("child is nil")
	ErrDisabled           = errors.New("supervisor disabled after supervision fault")
)
