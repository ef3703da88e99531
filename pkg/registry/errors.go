package registry

import "errors"

// ErrCodeSpaceExhausted is returned on the vanishingly unlikely event that
// rejection sampling cannot find a free code within a bounded number of
// attempts.
var ErrCodeSpaceExhausted = errors.New("registry: could not allocate a free room code")
