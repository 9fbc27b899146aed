package core

import "errors"

// ErrUnauthenticated aborts a session whose first envelope is not a
// valid handshake carrying a known user id.
var ErrUnauthenticated = errors.New("first envelope must be a handshake with a known user id")
