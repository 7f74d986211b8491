package probe

// Reach is the state of an attempt to reach a remote API.
type Reach int

const (
	// ReachReady means the client is connected and usable.
	ReachReady Reach = iota
	// ReachUnreachable means the client failed with an API client error.
	// The service is reported down, which is not itself a failed run.
	ReachUnreachable
	// ReachFault means something other than the API failed.
	ReachFault
)

// Reachability is the tagged result of connecting to a control-plane API:
// Ready carries a usable handle, Unreachable and Fault carry the cause.
type Reachability[T any] struct {
	State  Reach
	Handle T
	Err    error
}

// Ready wraps a connected handle.
func Ready[T any](handle T) Reachability[T] {
	return Reachability[T]{State: ReachReady, Handle: handle}
}

// Unreachable records an API client error.
func Unreachable[T any](err error) Reachability[T] {
	return Reachability[T]{State: ReachUnreachable, Err: err}
}

// Fault records any other failure.
func Fault[T any](err error) Reachability[T] {
	return Reachability[T]{State: ReachFault, Err: err}
}

// CheckAPI turns a reachability result into an Outcome for an availability
// probe. An unreachable API yields only "<namespace>_local_status 0"; a fault
// fails the run; a ready API yields "<namespace>_local_status 1" followed by
// everything collect returns.
func CheckAPI[T any](r Reachability[T], namespace string, collect func(T) ([]Metric, error)) Outcome {
	status := namespace + "_local_status"
	switch r.State {
	case ReachUnreachable:
		return Down(BoolMetric(namespace, status, false))
	case ReachFault:
		return Failed(r.Err)
	}

	metrics, err := collect(r.Handle)
	if err != nil {
		return Failed(err)
	}
	return Healthy(append([]Metric{BoolMetric(namespace, status, true)}, metrics...)...)
}
