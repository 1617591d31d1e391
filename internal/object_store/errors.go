package object_store

import "errors"

var (
	ErrObjectNotFound  = errors.New("object not found")
	ErrPutFailed       = errors.New("failed to put object")
	ErrDeleteFailed    = errors.New("failed to delete object")
	ErrNodeUnreachable = errors.New("storage node unreachable")
)
