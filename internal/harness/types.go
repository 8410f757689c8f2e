package harness

import "github.com/roach88/swarmsync/internal/ir"

// TraceEvent is one observable step of a run. Only deterministic values
// are recorded, so traces can be compared against golden files.
type TraceEvent struct {
	Seq     int64    `json:"seq"`
	Step    string   `json:"step"`
	Device  string   `json:"device,omitempty"`
	Target  string   `json:"target,omitempty"`
	Command string   `json:"command,omitempty"`
	Outcome string   `json:"outcome,omitempty"`
	Seqno   int64    `json:"seqno,omitempty"`
	Parts   []string `json:"parts,omitempty"`
	Merged  int      `json:"merged,omitempty"`
	Readers []string `json:"readers,omitempty"`
}

// Trace step names.
const (
	StepDo    = "do"
	StepPush  = "push"
	StepMerge = "merge"
	StepSend  = "send"
)

func (e TraceEvent) canonical() ir.IRObject {
	obj := ir.IRObject{
		"seq":  ir.IRInt(e.Seq),
		"step": ir.IRString(e.Step),
	}
	str := func(k, v string) {
		if v != "" {
			obj[k] = ir.IRString(v)
		}
	}
	list := func(k string, vs []string) {
		if len(vs) == 0 {
			return
		}
		arr := make(ir.IRArray, len(vs))
		for i, v := range vs {
			arr[i] = ir.IRString(v)
		}
		obj[k] = arr
	}
	str("device", e.Device)
	str("target", e.Target)
	str("command", e.Command)
	str("outcome", e.Outcome)
	if e.Seqno != 0 {
		obj["seqno"] = ir.IRInt(e.Seqno)
	}
	list("parts", e.Parts)
	if e.Merged != 0 {
		obj["merged"] = ir.IRInt(int64(e.Merged))
	}
	list("readers", e.Readers)
	return obj
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) record(e TraceEvent) {
	e.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, e)
}
