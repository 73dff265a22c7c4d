package transfer

// Outcome is the result of registering an idempotency key.
type Outcome int

const (
	// Accepted means this caller won the key and owns the movement.
	Accepted Outcome = iota
	// AlreadySeen means the key was consumed by an earlier (or concurrent)
	// call. It is the duplicate-detection success path, not an error: the
	// insert under the uniqueness constraint is both the check and the act,
	// so check-then-act races cannot exist.
	AlreadySeen
)
