package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
// A scenario seeds users, notifications and tasks, then drives the
// facade, the engine and the retention cleaner through a flow of steps at
// explicit instants, and asserts on the resulting trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the RFC 3339 instant the clock is set to before setup.
	Start string `yaml:"start"`

	// Timezone decides which calendar date an instant falls on.
	// Default: UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Users are registered in the user directory before setup.
	Users []string `yaml:"users,omitempty"`

	// Setup writes notifications straight to the store, bypassing authoring
	// rules. This allows fixtures that expired in the past.
	Setup []NotificationFixture `yaml:"setup,omitempty"`

	// Flow contains the steps, in order, each optionally validated.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count,
	// final_state, row_count
	Assertions []Assertion `yaml:"assertions"`
}

// NotificationFixture is a notification seeded directly into the store.
type NotificationFixture struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title,omitempty"`
	Message    string   `yaml:"message,omitempty"`
	Global     bool     `yaml:"global,omitempty"`
	Targets    []string `yaml:"targets,omitempty"`
	Deleted    bool     `yaml:"deleted,omitempty"`
	Recurrence string   `yaml:"recurrence,omitempty"`
	ExpiresAt  string   `yaml:"expires_at,omitempty"`
	CreatedAt  string   `yaml:"created_at,omitempty"`
	Action     *Action  `yaml:"action,omitempty"`
}

// Action is a fixture's action item.
type Action struct {
	Description string `yaml:"description"`
	Category    string `yaml:"category,omitempty"`
}

// FlowStep is one step of the flow.
type FlowStep struct {
	// Invoke names the operation, e.g. "engine.cycle".
	Invoke string `yaml:"invoke"`

	// At moves the clock to this RFC 3339 instant before the step runs.
	// If empty, the clock keeps its current value.
	At string `yaml:"at,omitempty"`

	// Args contains the operation arguments.
	Args map[string]interface{} `yaml:"args"`

	// Expect specifies the expected outcome.
	// If nil, the step must succeed and its result is not checked.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected step behavior.
type ExpectClause struct {
	// Case is the expected outcome: "Success" or an error case such as
	// "Forbidden", "NotFound" or "OrphanTask".
	Case string `yaml:"case"`

	// Result contains expected result field values.
	// This is a subset match - only specified fields are validated.
	Result map[string]interface{} `yaml:"result,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check operation appears in trace with args
	// - "trace_order": Check operations appear in order
	// - "trace_count": Check operation appears exactly N times
	// - "final_state": Query table and verify the single matching row
	// - "row_count": Query table and verify the number of matching rows
	Type string `yaml:"type"`

	// Action is the operation name (trace_contains, trace_count).
	Action string `yaml:"action,omitempty"`

	// Args are the expected operation arguments (trace_contains).
	// Subset match - only specified fields are validated.
	Args map[string]interface{} `yaml:"args,omitempty"`

	// Table is the state table name (final_state, row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state, row_count).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences or rows
	// (trace_count, row_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected operation order (trace_order).
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Start == "" {
		return fmt.Errorf("start is required")
	}
	if _, err := parseInstant(s.Start); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	if s.Timezone != "" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Setup))
	for i, n := range s.Setup {
		if n.ID == "" {
			return fmt.Errorf("setup[%d]: id is required", i)
		}
		if seen[n.ID] {
			return fmt.Errorf("setup[%d]: duplicate id %q", i, n.ID)
		}
		seen[n.ID] = true
		for _, field := range []struct{ name, value string }{
			{"expires_at", n.ExpiresAt},
			{"created_at", n.CreatedAt},
		} {
			if field.value == "" {
				continue
			}
			if _, err := parseInstant(field.value); err != nil {
				return fmt.Errorf("setup[%d].%s: %w", i, field.name, err)
			}
		}
	}

	for i, step := range s.Flow {
		if step.Invoke == "" {
			return fmt.Errorf("flow[%d]: invoke is required", i)
		}
		if _, ok := operations[step.Invoke]; !ok {
			return fmt.Errorf("flow[%d]: unknown operation %q", i, step.Invoke)
		}
		if step.Args == nil {
			return fmt.Errorf("flow[%d]: args is required (use empty map if no args)", i)
		}
		if step.At != "" {
			if _, err := parseInstant(step.At); err != nil {
				return fmt.Errorf("flow[%d].at: %w", i, err)
			}
		}
		if step.Expect != nil && step.Expect.Case == "" {
			return fmt.Errorf("flow[%d].expect: case is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

func parseInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid RFC 3339 instant %q", s)
	}
	return t.UTC(), nil
}
