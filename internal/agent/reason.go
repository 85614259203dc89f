package agent

const (
	ReasonDone            = "task finished"
	ReasonMaxSteps        = "max steps reached"
	ReasonInterrupted     = "interrupted by user (Ctrl+C)"
	ReasonTooManyFailures = "too many consecutive failures"
)

func humanizeReason(reason string) string {
	switch reason {
	case ReasonDone:
		return "model explicitly finished the task with the done action"
	case ReasonMaxSteps:
		return "step limit reached"
	case ReasonInterrupted:
		return "execution was interrupted by user (Ctrl+C)"
	case ReasonTooManyFailures:
		return "the model or the browser failed repeatedly"
	default:
		return reason
	}
}
