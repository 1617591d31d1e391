package file_service

import (
	"errors"
	"fmt"

	"github.com/shardstore/shardstore/internal/metadata"
)

var (
	ErrInvalidInput = errors.New("invalid store file input")
	ErrFileExists   = errors.New("file with identical name and content already exists for owner")
	ErrFileDeleted  = errors.New("file is deleted")
	ErrNotDeleted   = errors.New("file is not deleted")
)

// DuplicateFileError carries the existing record when an upload matches
// a file the owner already stored. errors.Is(err, ErrFileExists) holds.
type DuplicateFileError struct {
	Existing metadata.File
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("file %q already exists for owner %s as %s", e.Existing.Name, e.Existing.OwnerID, e.Existing.ID)
}

func (e *DuplicateFileError) Is(target error) bool {
	return target == ErrFileExists
}
