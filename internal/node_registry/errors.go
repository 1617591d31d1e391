package node_registry

import "errors"

var (
	ErrInvalidNode     = errors.New("invalid node registration")
	ErrNodeNotFound    = errors.New("node not found in registry")
	ErrRegisterFailed  = errors.New("failed to register node")
	ErrReconcileFailed = errors.New("failed to reconcile node capacity")
)
