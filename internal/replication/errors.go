package replication

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid chunk write input")
	ErrWriteFailed     = errors.New("no replica write succeeded")
	ErrDeleteFailed    = errors.New("failed to delete replicated chunks")
	ErrNoHealthySource = errors.New("no healthy replica to repair from")
	ErrRepairFailed    = errors.New("failed to repair chunk replica")
)
