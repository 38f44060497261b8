package fswatch

import "errors"

// ErrDirNotExist is returned by New when the directory to watch does not exist.
var ErrDirNotExist = errors.New("fswatch: directory to watch does not exist")
