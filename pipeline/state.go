package pipeline

// State 调用管道生命周期状态，严格单调
type State int32

const (
	StateCreated State = iota
	StatePrepared
	StateExecuting
	StateExecuted
	StateProcessing
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StatePrepared:
		return "PREPARED"
	case StateExecuting:
		return "EXECUTING"
	case StateExecuted:
		return "EXECUTED"
	case StateProcessing:
		return "PROCESSING"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "UNKNOWN"
	}
}
