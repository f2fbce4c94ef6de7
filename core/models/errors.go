package models

import "errors"

// ErrRunNotFound is returned by run stores for unknown run ids
var ErrRunNotFound = errors.New("run not found")
