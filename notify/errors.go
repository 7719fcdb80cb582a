package notify

import "errors"

// ErrMissingInput signals a bad request: a required trigger parameter was
// absent.
var ErrMissingInput = errors.New("notify: missing required input")
