package config

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// FieldError is one schema violation with its source position.
type FieldError struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

func (e FieldError) String() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.File, e.Line, e.Column)
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationError lists every schema violation of a configuration file.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		lines[i] = fe.String()
	}
	return "invalid configuration:\n  " + strings.Join(lines, "\n  ")
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaVal  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaVal = v.LookupPath(cue.ParsePath("#Config"))
	})
	return schemaCtx, schemaVal, schemaErr
}

// Validate checks data against the configuration schema. Violations are
// returned as a *ValidationError with file positions; malformed YAML is
// reported the same way.
func Validate(filename string, data []byte) error {
	ctx, schema, err := loadSchema()
	if err != nil {
		return err
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return toValidationError(err)
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()

	v := ctx.BuildFile(file)
	if err := v.Err(); err != nil {
		return toValidationError(err)
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return toValidationError(err)
	}
	return nil
}

func toValidationError(err error) error {
	out := &ValidationError{}
	for _, e := range errors.Errors(err) {
		format, args := e.Msg()
		fe := FieldError{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		for _, pos := range errors.Positions(e) {
			// Prefer the position inside the user's file over the schema.
			if pos.IsValid() && pos.Filename() != "schema.cue" {
				fe.File = pos.Filename()
				fe.Line = pos.Line()
				fe.Column = pos.Column()
				break
			}
		}
		out.Errors = append(out.Errors, fe)
	}
	if len(out.Errors) == 0 {
		out.Errors = []FieldError{{Message: err.Error()}}
	}
	return out
}
