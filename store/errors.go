package store

import "errors"

// ErrTerminated is the panic value a blocking Read/Remove raises once the
// store has been Close()d.
var ErrTerminated = errors.New("store: operation attempted on a terminated store")
