package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/swarmsync/internal/ir"
)

// TraceJSON renders a run's trace as canonical JSON.
func TraceJSON(name string, r *Result) ([]byte, error) {
	events := make(ir.IRArray, len(r.Trace))
	for i, e := range r.Trace {
		events[i] = e.canonical()
	}
	return ir.MarshalCanonical(ir.IRObject{
		"scenario": ir.IRString(name),
		"trace":    events,
	})
}

// RunWithGolden runs sc and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario, opts ...Option) *Result {
	t.Helper()
	result, err := Run(context.Background(), sc, opts...)
	if err != nil {
		t.Fatalf("run %s: %v", sc.Name, err)
	}
	AssertGolden(t, sc.Name, result)
	return result
}

// AssertGolden compares an existing result's trace with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	data, err := TraceJSON(name, result)
	if err != nil {
		t.Fatalf("trace %s: %v", name, err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
