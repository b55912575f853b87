package event

// Type identifies a streaming event's concrete shape. Subscribers switch on
// this rather than type-asserting Event so routing stays table-driven.
type Type string

const (
	TypePlanStarted          Type = "plan_started"
	TypePlanFinished         Type = "plan_finished"
	TypeStepStarted          Type = "step_started"
	TypeStepCompleted        Type = "step_completed"
	TypeTextMessageStart     Type = "text_message_start"
	TypeTextMessageContent   Type = "text_message_content"
	TypeTextMessageEnd       Type = "text_message_end"
	TypeToolCalls            Type = "tool_calls"
	TypeToolExecutionStart   Type = "tool_execution_start"
	TypeToolExecutionEnd     Type = "tool_execution_end"
	TypeToolResults          Type = "tool_results"
	TypeRunStarted           Type = "run_started"
	TypeRunFinished          Type = "run_finished"
	TypeRunError             Type = "run_error"
	TypeInlineHookRequested  Type = "inline_hook_requested"
	TypeBrowserSessionStarted Type = "browser_session_started"
)

// Event is the common envelope for every event the runtime emits. Concrete
// Data payloads are one of the *Data structs below, selected by Type.
type Event struct {
	Type      Type
	RunID     string
	TaskID    string
	ThreadID  string
	StepID    string
	Data      any
}

type (
	PlanStartedData struct {
		InitialPlan bool
	}
	PlanFinishedData struct {
		TotalSteps  int
		InitialPlan bool
	}
	StepStartedData struct {
		StepID string
		Index  int
	}
	StepCompletedData struct {
		StepID  string
		Success bool
	}
	TextMessageContentData struct {
		Delta string
	}
	ToolCallsData struct {
		Calls []ToolCall
	}
	ToolExecutionStartData struct {
		ToolCallID string
		ToolName   string
	}
	ToolExecutionEndData struct {
		ToolCallID string
		ToolName   string
		Success    bool
	}
	ToolResultsData struct {
		Responses []ToolResponse
	}
	RunStartedData struct{}
	RunFinishedData struct {
		Success     bool
		TotalSteps  int
		FailedSteps int
		Usage       Usage
	}
	RunErrorData struct {
		Code    string
		Message string
	}
	InlineHookRequestedData struct {
		HookID string
		Prompt string
	}
	BrowserSessionStartedData struct {
		SessionID string
	}
)

// Sink is implemented by anything that can receive a run's events. Send on
// a closed sink returns an error the caller discards rather than
// propagates. Send on a full ChanSink blocks until the consumer drains it.
type Sink interface {
	Send(e Event) error
}

// ChanSink adapts a buffered channel to Sink. It is the default
// implementation used by the executor context: the channel's buffer (sized
// per §5, nominally 100) is the sole backpressure mechanism.
type ChanSink struct {
	ch     chan Event
	closed chan struct{}
}

// NewChanSink creates a ChanSink backed by a channel of the given buffer
// size. Capacity should be ~100 per the concurrency model.
func NewChanSink(capacity int) *ChanSink {
	return &ChanSink{
		ch:     make(chan Event, capacity),
		closed: make(chan struct{}),
	}
}

// Send enqueues the event. Returns an error without blocking forever if the
// sink has been closed; a full-but-open channel blocks the caller, which is
// the intended backpressure behavior.
func (s *ChanSink) Send(e Event) error {
	select {
	case <-s.closed:
		return errSinkClosed
	default:
	}
	select {
	case s.ch <- e:
		return nil
	case <-s.closed:
		return errSinkClosed
	}
}

// C returns the receive-only channel consumers drain.
func (s *ChanSink) C() <-chan Event { return s.ch }

// Close marks the sink closed. Idempotent. Subsequent Send calls fail fast.
func (s *ChanSink) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

var errSinkClosed = sinkClosedError{}

type sinkClosedError struct{}

func (sinkClosedError) Error() string { return "event sink closed" }
