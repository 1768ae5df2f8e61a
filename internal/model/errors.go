package model

import "errors"

// ErrNotFound is returned by stores for missing rows and for rows owned by
// another account, so callers cannot probe for existence.
var ErrNotFound = errors.New("not found")
