// Package template resolves $step<id>.<field> references inside step
// parameters against prior step results.
//
// The resolver is a small hand-written tokenizer over the reference grammar
// plus a recursive walk of the parameter tree. Two substitution modes exist:
//
//   - A string that is exactly one reference resolves to the referenced
//     field's raw value, preserving its type (a number stays a number).
//   - A reference embedded in a longer string is replaced with the string
//     form of the referenced field.
//
// Unresolved references (missing step id or field) are left verbatim in both
// modes. This is documented degradation, not an error: a human-readable trace
// of what was asked for survives for debugging.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/steward-ai/steward/internal/capability"
)

const refPrefix = "$step"

// Reference is a parsed $step<id>.<field> occurrence inside a string.
type Reference struct {
	// StepID is the referenced step's integer id.
	StepID int

	// Field is the referenced payload field name.
	Field string

	// Raw is the literal reference text as it appeared, e.g. "$step2.path".
	Raw string
}

// Resolve applies reference resolution recursively over maps, slices, and
// strings. Non-string leaves pass through unchanged. The input is never
// mutated; maps and slices are rebuilt so the caller receives a copy.
//
// Resolving a structure that contains no references returns a value
// deep-equal to the input.
func Resolve(value any, results map[int]*capability.StepResult) any {
	switch v := value.(type) {
	case string:
		return resolveString(v, results)

	case map[string]any:
		resolved := make(map[string]any, len(v))
		for key, val := range v {
			resolved[key] = Resolve(val, results)
		}
		return resolved

	case []any:
		resolved := make([]any, len(v))
		for i, val := range v {
			resolved[i] = Resolve(val, results)
		}
		return resolved

	default:
		return value
	}
}

// resolveString resolves references inside a single string value.
func resolveString(s string, results map[int]*capability.StepResult) any {
	refs := FindReferences(s)
	if len(refs) == 0 {
		return s
	}

	// Whole-value reference: the entire string is exactly one reference.
	// Return the raw field value, type preserved.
	if len(refs) == 1 && refs[0].Raw == s {
		if value, ok := lookup(refs[0], results); ok {
			return value
		}
		return s
	}

	// Inline references: substitute string forms, leave unresolved
	// references verbatim.
	var sb strings.Builder
	rest := s
	for _, ref := range refs {
		idx := strings.Index(rest, ref.Raw)
		if idx < 0 {
			continue
		}
		sb.WriteString(rest[:idx])
		if value, ok := lookup(ref, results); ok {
			sb.WriteString(stringify(value))
		} else {
			sb.WriteString(ref.Raw)
		}
		rest = rest[idx+len(ref.Raw):]
	}
	sb.WriteString(rest)
	return sb.String()
}

// lookup fetches the referenced payload field from prior step results.
func lookup(ref Reference, results map[int]*capability.StepResult) (any, bool) {
	result, ok := results[ref.StepID]
	if !ok || result == nil {
		return nil, false
	}
	return result.Field(ref.Field)
}

// stringify renders a payload value for inline substitution.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		// JSON-decoded numbers arrive as float64; render integral values
		// without a trailing ".0" so inline text reads naturally.
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FindReferences tokenizes a string and returns every well-formed
// $step<id>.<field> occurrence in order of appearance. Malformed candidates
// ("$step", "$stepX.", "$step3") are not references and are ignored.
func FindReferences(s string) []Reference {
	var refs []Reference

	for i := 0; i+len(refPrefix) < len(s); {
		idx := strings.Index(s[i:], refPrefix)
		if idx < 0 {
			break
		}
		start := i + idx
		ref, end, ok := parseReference(s, start)
		if ok {
			refs = append(refs, ref)
			i = end
		} else {
			i = start + len(refPrefix)
		}
	}

	return refs
}

// parseReference parses one reference starting at position start, which must
// point at the '$'. Returns the reference, the position just past it, and
// whether the parse succeeded.
func parseReference(s string, start int) (Reference, int, bool) {
	pos := start + len(refPrefix)

	// <id>: one or more digits.
	digitsStart := pos
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		pos++
	}
	digitsEnd := pos
	if digitsEnd == digitsStart {
		return Reference{}, 0, false
	}

	// Literal dot separator.
	if pos >= len(s) || s[pos] != '.' {
		return Reference{}, 0, false
	}
	pos++

	// <field>: one or more identifier characters.
	fieldStart := pos
	for pos < len(s) && isFieldChar(s[pos]) {
		pos++
	}
	if pos == fieldStart {
		return Reference{}, 0, false
	}

	id, err := strconv.Atoi(s[digitsStart:digitsEnd])
	if err != nil {
		return Reference{}, 0, false
	}

	return Reference{
		StepID: id,
		Field:  s[fieldStart:pos],
		Raw:    s[start:pos],
	}, pos, true
}

func isFieldChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// ContainsReference reports whether the string carries at least one
// well-formed reference. The finalizer uses this to flag leftover unresolved
// reference syntax in terminal output as a diagnostic.
func ContainsReference(s string) bool {
	return len(FindReferences(s)) > 0
}
