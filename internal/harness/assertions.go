package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/swarmsync/internal/command"
)

// AssertionError describes one failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s failed: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context) []string {
	var out []string
	for i, a := range h.sc.Assertions {
		var err error
		switch a.Type {
		case AssertConverged:
			err = h.assertConverged(ctx, a)
		case AssertTraceCount:
			err = assertTraceCount(h.result.Trace, a)
		case AssertResult:
			err = h.assertResult(ctx, a)
		default:
			err = errors.Newf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			out = append(out, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return out
}

// assertConverged checks that every listed device holds the same values
// for target.
func (h *Harness) assertConverged(ctx context.Context, a Assertion) error {
	devices := a.Devices
	if len(devices) == 0 {
		devices = h.holders(a.Target)
	}
	digests := map[string][]string{}
	for _, d := range devices {
		res, err := h.do(ctx, d, a.Target, command.Digest{})
		if err != nil {
			return err
		}
		s := res.(string)
		digests[s] = append(digests[s], d)
	}
	if len(digests) <= 1 {
		return nil
	}
	var groups []string
	for _, ds := range digests {
		groups = append(groups, "["+strings.Join(ds, " ")+"]")
	}
	sort.Strings(groups)
	return &AssertionError{
		Type:     AssertConverged,
		Expected: fmt.Sprintf("%s identical on %s", a.Target, strings.Join(devices, ", ")),
		Actual:   fmt.Sprintf("%d distinct states: %s", len(digests), strings.Join(groups, " ")),
	}
}

// assertTraceCount counts events whose command or step name is a.Action.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, e := range trace {
		if e.Command == a.Action || e.Step == a.Action {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s %d times", a.Action, a.Count),
			Actual:   fmt.Sprintf("%d times", n),
		}
	}
	return nil
}

// assertResult runs a read command and subset-matches its JSON form.
func (h *Harness) assertResult(ctx context.Context, a Assertion) error {
	cmd, err := h.parse(a.Do, a.Args)
	if err != nil {
		return err
	}
	res, err := h.do(ctx, a.Device, a.Target, cmd)
	if err != nil {
		return err
	}
	actual, err := normalize(res)
	if err != nil {
		return err
	}
	expect, err := normalize(h.substitute(a.Expect))
	if err != nil {
		return err
	}
	if !matchSubset(actual, expect) {
		got, _ := json.Marshal(actual)
		want, _ := json.Marshal(expect)
		return &AssertionError{
			Type:     AssertResult,
			Expected: fmt.Sprintf("%s on %s/%s to contain %s", a.Do, a.Device, a.Target, want),
			Actual:   string(got),
		}
	}
	return nil
}

// normalize round-trips v through JSON so YAML and Go values compare
// with the same types.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// matchSubset reports whether every field in expected is present in
// actual with an equal value. Nested objects match recursively; arrays
// must match exactly.
func matchSubset(actual, expected any) bool {
	em, ok := expected.(map[string]any)
	if !ok {
		return reflect.DeepEqual(actual, expected)
	}
	am, ok := actual.(map[string]any)
	if !ok {
		return false
	}
	for k, ev := range em {
		av, found := am[k]
		if !found || !matchSubset(av, ev) {
			return false
		}
	}
	return true
}
