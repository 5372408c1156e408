package monitor

// Metrics is a snapshot of the measurement slots.
type Metrics struct {
	// Active is the number of sessions currently measuring.
	Active int64
	// Capacity is the number of sessions allowed at once.
	Capacity int64
	// Session names the most recently acquired session, empty when idle.
	Session string
}

// SessionMonitor tracks which measurement sessions hold the device.
// A measurement is disturbed by any other load on the board, so the
// device reports itself unhealthy to schedulers while a session runs.
type SessionMonitor interface {
	// Metrics returns the current slot usage.
	Metrics() Metrics

	// IsHealthy returns true when no session is measuring and other work
	// may be placed on the device.
	IsHealthy() bool

	// TryAcquire claims a slot for the named session. Returns true if
	// successful. The caller MUST call Release() when the session ends.
	TryAcquire(session string) bool

	// Release frees a slot claimed by TryAcquire.
	Release()

	// Subscribe returns a channel that receives a value after every
	// change, and a function that ends the subscription.
	Subscribe() (<-chan struct{}, func())
}
