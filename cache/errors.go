package cache

import "errors"

// ErrInvalidConfiguration is returned by [NewStore] and [NewL1] when a size or TTL is
// not positive. Such a store could never hold an entry.
var ErrInvalidConfiguration = errors.New("cache: invalid configuration")
