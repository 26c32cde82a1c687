package recurrence

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	ruleSchema cue.Value
	schemaErr  error

	// cueMu guards the schema's cue.Context, which is not safe for concurrent use.
	cueMu sync.Mutex
)

// loadSchema compiles the embedded schema once per process.
func loadSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile recurrence schema: %w", err)
			return
		}
		ruleSchema = v.LookupPath(cue.ParsePath("#Rule"))
		if err := ruleSchema.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Rule: %w", err)
		}
	})
	return ruleSchema, schemaErr
}

// Validate checks rule at authoring time. JSON rules are checked against the
// embedded schema before parsing; shorthand rules are only parsed.
func Validate(rule string) error {
	text := strings.TrimSpace(rule)
	if strings.HasPrefix(text, "{") {
		if err := checkSchema(rule, text); err != nil {
			return err
		}
	}
	_, err := Parse(rule)
	return err
}

func checkSchema(rule, text string) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	cueMu.Lock()
	defer cueMu.Unlock()

	v := schema.Context().CompileString(text, cue.Filename("rule.json"))
	if err := v.Err(); err != nil {
		return &RuleError{Rule: rule, Reason: "malformed JSON", Err: err}
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return &RuleError{Rule: rule, Reason: "does not match rule schema", Err: err}
	}
	return nil
}
