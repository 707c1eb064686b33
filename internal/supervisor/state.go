package supervisor

// State is the lifecycle state of one supervised worker.
type State string

const (
	StateStarting   State = "starting"
	StateServing    State = "serving"
	StateDraining   State = "draining"
	StateCrashed    State = "crashed"
	StateTerminated State = "terminated"
)
