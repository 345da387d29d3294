package harness

// TraceEvent records one executed operation and its observable outcome.
// Timestamps are left out so both backends produce identical traces.
type TraceEvent struct {
	Step int    `json:"step"`
	Op   string `json:"op"`

	// Args are the step's arguments with bindings resolved.
	Args map[string]interface{} `json:"-"`

	OK         bool   `json:"ok"`
	ID         int64  `json:"id,omitempty"`
	Found      *bool  `json:"found,omitempty"`
	Liked      *bool  `json:"liked,omitempty"`
	LikesCount *int64 `json:"likes_count,omitempty"`
	Count      *int   `json:"count,omitempty"`
	Author     string `json:"author,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution on one backend.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Backend is the kind of backend the scenario ran against.
	Backend string `json:"backend"`

	// Trace contains one event per executed step, setup included.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(backend string) *Result {
	return &Result{
		Pass:    true,
		Backend: backend,
		Trace:   []TraceEvent{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(n int64) *int64 { return &n }
func intPtr(n int) *int       { return &n }
