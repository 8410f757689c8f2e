package harness

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Scenario is a multi-device run: devices issue commands against their
// configs and groups, exchange data through an in-memory relay, and the
// result is checked with assertions.
type Scenario struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Limits      *Limits     `yaml:"limits,omitempty"`
	Devices     []Device    `yaml:"devices"`
	Groups      []Group     `yaml:"groups,omitempty"`
	Steps       []Step      `yaml:"steps"`
	Assertions  []Assertion `yaml:"assertions,omitempty"`
}

// Limits overrides selected settings.Limits fields for a run.
type Limits struct {
	RegistrySize        *int `yaml:"registry_size,omitempty"`
	RetainedGenerations *int `yaml:"retained_generations,omitempty"`
	SupplementBatchSize *int `yaml:"supplement_batch_size,omitempty"`
	KeyExpiryDays       *int `yaml:"key_expiry_days,omitempty"`
}

// Device is one client. Devices with the same user share an account and
// therefore the user configs.
type Device struct {
	Name string `yaml:"name"`
	User int    `yaml:"user"`
}

// Group is an encrypted group. Admin devices hold the group secret; member
// devices open it read-only.
type Group struct {
	Name    string   `yaml:"name"`
	Key     int      `yaml:"key"`
	Admins  []string `yaml:"admins"`
	Members []string `yaml:"members,omitempty"`
}

// Step is exactly one of: a command (Do), a relay round (Sync), or a group
// message (Send).
type Step struct {
	Device string         `yaml:"device,omitempty"`
	Target string         `yaml:"target,omitempty"`
	Do     string         `yaml:"do,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect string         `yaml:"expect,omitempty"`

	Sync    string   `yaml:"sync,omitempty"`
	Devices []string `yaml:"devices,omitempty"`

	Send       string   `yaml:"send,omitempty"`
	Text       string   `yaml:"text,omitempty"`
	Readable   []string `yaml:"readable,omitempty"`
	Unreadable []string `yaml:"unreadable,omitempty"`
}

// Assertion checks the final state or the trace.
type Assertion struct {
	// Type is one of converged, trace_count, result.
	Type string `yaml:"type"`

	Target  string   `yaml:"target,omitempty"`
	Devices []string `yaml:"devices,omitempty"`

	Action string `yaml:"action,omitempty"`
	Count  int    `yaml:"count,omitempty"`

	Device string         `yaml:"device,omitempty"`
	Do     string         `yaml:"do,omitempty"`
	Args   map[string]any `yaml:"args,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertConverged  = "converged"
	AssertTraceCount = "trace_count"
	AssertResult     = "result"
)

// Expected outcomes of a Do step.
const (
	OutcomeOK           = "ok"
	OutcomeInvalidInput = "invalid_input"
	OutcomeMisuse       = "misuse"
	OutcomeError        = "error"
)

const groupPrefix = "group:"

// LoadScenario reads, schema-checks and parses a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario file")
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return sc, nil
}

// ParseScenario validates data against the embedded CUE schema, decodes it
// with unknown fields rejected, and checks cross references.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, errors.Wrap(err, "parse YAML")
	}
	if err := validateScenario(&sc); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &sc, nil
}

func checkSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "parse YAML")
	}
	if doc == nil {
		return errors.New("invalid scenario: empty document")
	}
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Scenario"))
	if err := schema.Err(); err != nil {
		return errors.Wrap(err, "compile scenario schema")
	}
	v := schema.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return errors.Wrap(err, "scenario schema")
	}
	return nil
}

// validateScenario checks what the schema cannot: names are unique and
// every reference points at a declared device or group.
func validateScenario(s *Scenario) error {
	devices := map[string]bool{}
	for _, d := range s.Devices {
		if devices[d.Name] {
			return errors.Newf("duplicate device %q", d.Name)
		}
		devices[d.Name] = true
	}
	groups := map[string]map[string]bool{}
	for _, g := range s.Groups {
		if groups[g.Name] != nil {
			return errors.Newf("duplicate group %q", g.Name)
		}
		in := map[string]bool{}
		for _, d := range append(append([]string(nil), g.Admins...), g.Members...) {
			if !devices[d] {
				return errors.Newf("group %q: unknown device %q", g.Name, d)
			}
			if in[d] {
				return errors.Newf("group %q: device %q listed twice", g.Name, d)
			}
			in[d] = true
		}
		groups[g.Name] = in
	}

	checkTarget := func(where, device, target string) error {
		if device != "" && !devices[device] {
			return errors.Newf("%s: unknown device %q", where, device)
		}
		name, ok := strings.CutPrefix(target, groupPrefix)
		if !ok {
			return nil
		}
		in, found := groups[name]
		if !found {
			return errors.Newf("%s: unknown group %q", where, name)
		}
		if device != "" && !in[device] {
			return errors.Newf("%s: device %q is not in group %q", where, device, name)
		}
		return nil
	}
	checkDevices := func(where string, names []string) error {
		for _, d := range names {
			if !devices[d] {
				return errors.Newf("%s: unknown device %q", where, d)
			}
		}
		return nil
	}

	for i, st := range s.Steps {
		where := fmt.Sprintf("steps[%d]", i)
		set := 0
		for _, v := range []string{st.Do, st.Sync, st.Send} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return errors.Newf("%s: exactly one of do, sync, send is required", where)
		}
		var err error
		switch {
		case st.Do != "":
			err = checkTarget(where, st.Device, st.Target)
		case st.Sync != "":
			if err = checkDevices(where, st.Devices); err == nil {
				err = checkTarget(where, "", st.Sync)
			}
		default:
			if err = checkTarget(where, st.Device, st.Send); err == nil {
				err = checkDevices(where, append(append([]string(nil), st.Readable...), st.Unreadable...))
			}
		}
		if err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		where := fmt.Sprintf("assertions[%d]", i)
		var err error
		switch a.Type {
		case AssertConverged:
			if err = checkDevices(where, a.Devices); err == nil {
				err = checkTarget(where, "", a.Target)
			}
		case AssertResult:
			err = checkTarget(where, a.Device, a.Target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
