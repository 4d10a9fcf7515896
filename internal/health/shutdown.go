package health

import "sync/atomic"

// ready starts true so probes pass as soon as the server binds.
var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady flips the readiness gate. Call with false when shutdown begins
// so the load balancer stops routing before in-flight requests drain.
func SetReady(v bool) {
	ready.Store(v)
}

// Ready reports the readiness gate.
func Ready() bool {
	return ready.Load()
}
