package tuner

import "errors"

// errStillActive is the internal cause wrapped when Activate is called on
// a tuner that already holds a session; activation requires Inactive.
var errStillActive = errors.New("tuner: activation requires an inactive tuner")
