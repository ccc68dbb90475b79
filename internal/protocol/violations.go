package protocol

import "strings"

// FieldViolation records one failed constraint at a JSON field path.
type FieldViolation struct {
	Path       string
	Constraint string
}

func (f FieldViolation) String() string {
	if f.Path == "" {
		return f.Constraint
	}
	return f.Path + ": " + f.Constraint
}

// Violations aggregates every failing field of a payload so callers see the
// complete picture, not just the first problem.
type Violations []FieldViolation

func (v Violations) Error() string {
	parts := make([]string, 0, len(v))
	for _, f := range v {
		parts = append(parts, f.String())
	}
	return "schema violation: " + strings.Join(parts, "; ")
}

// Add appends one violation.
func (v *Violations) Add(path, constraint string) {
	*v = append(*v, FieldViolation{Path: path, Constraint: constraint})
}

// OrNil returns the collected violations as an error, or nil if none.
func (v Violations) OrNil() error {
	if len(v) == 0 {
		return nil
	}
	return v
}
