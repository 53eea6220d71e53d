package ports

// Scheduler key conventions shared by the services that schedule and cancel
// each other's deferred tasks.

// DispatchTaskKey names the deferred dispatch task of a filled pool.
func DispatchTaskKey(poolID string) string { return "dispatch:" + poolID }

// OfferTimerKey names the pending offer timeout of a dispatched pool.
func OfferTimerKey(poolID string) string { return "offer_timeout:" + poolID }
