package version_service

import "errors"

var ErrFileDeleted = errors.New("cannot snapshot a deleted file")
