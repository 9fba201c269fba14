package harness

// Page outcomes recorded in the trace.
const (
	PageWritten   = "written"
	PageUnchanged = "unchanged"
	PageSkipped   = "skipped"
)

// TraceEvent records what one run did for one project.
type TraceEvent struct {
	Run      int      `json:"run"`
	Date     string   `json:"date"`
	Project  string   `json:"project"`
	Hours    float64  `json:"hours"`
	Crossed  []string `json:"crossed"`
	Notified bool     `json:"notified"`
	Page     string   `json:"page"`

	// Error is the sync error code of a failed project, NotifyError the
	// code of a failed delivery.
	Error       string `json:"error,omitempty"`
	NotifyError string `json:"notify_error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all run expectations and assertions hold.
	Pass bool `json:"pass"`

	// Trace contains one event per project per run, in run order and then
	// project order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Mails is the number of notification attempts per run.
	Mails []int `json:"mails"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Mails:  []int{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
