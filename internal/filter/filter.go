// Package filter renders declarative filter specifications in to FFmpeg
// filter-graph fragments.
//
// Each Spec carries a template whose placeholders (%1, %2, ...) are replaced
// with the textual form of the matching parameter. Template authors embed a
// leading Separator in their templates so that fragments from several specs
// can be concatenated blindly, and then cleaned up using Normalize.
package filter

import (
	"fmt"
	"slices"
	"strings"
)

// Separator is the character used to chain filter clauses together.
const Separator = ","

type (
	// Param is a single positional value for a filter template. A param
	// may be explicitly absent, which suppresses the entire clause in the
	// same way that a value matching one of its DisableOn sentinels does.
	Param struct {
		Value     string
		Absent    bool
		DisableOn []string
	}

	// Spec is a declarative description of a filter clause.
	Spec struct {
		Params   []Param
		Template string

		// Verbatim specs are emitted exactly as their template,
		// with no substitution or suppression.
		Verbatim bool
	}
)

// Value constructs a present Param. If the value provided matches
// any of the disable sentinels, the clause using this param is dropped.
func Value(v any, disableOn ...string) Param {
	return Param{Value: fmt.Sprint(v), DisableOn: disableOn}
}

// Optional constructs a Param from a pointer, where a nil pointer
// yields an absent Param.
func Optional[T any](v *T, disableOn ...string) Param {
	if v == nil {
		return Absent()
	}

	return Value(*v, disableOn...)
}

// Absent constructs a Param which has no value. Any clause containing
// an absent param is suppressed.
func Absent() Param {
	return Param{Absent: true}
}

// Verbatim constructs a spec which emits the clause provided as-is. The
// leading separator is added so the result can be concatenated like any other
// elaborated clause. An empty clause yields a spec which elaborates to nothing.
func Verbatim(clause string) Spec {
	clause = strings.TrimSpace(clause)
	if clause == "" {
		return Spec{Verbatim: true}
	}

	return Spec{Template: Separator + clause, Verbatim: true}
}

// New constructs a substituting spec from the template and params provided.
func New(template string, params ...Param) Spec {
	return Spec{Template: template, Params: params}
}

func (p Param) disabled() bool {
	return p.Absent || slices.Contains(p.DisableOn, p.Value)
}

// Elaborate renders the spec in to a filter fragment. If any parameter is
// absent or matches one of its disable sentinels, the empty string is returned
// and the whole clause is dropped.
func Elaborate(spec Spec) string {
	if spec.Verbatim {
		return spec.Template
	}

	// Placeholders are substituted highest-index first so that %1 does
	// not match the prefix of %10.
	pairs := make([]string, 0, len(spec.Params)*2)
	for i := len(spec.Params) - 1; i >= 0; i-- {
		param := spec.Params[i]
		if param.disabled() {
			return ""
		}

		pairs = append(pairs, fmt.Sprintf("%%%d", i+1), param.Value)
	}

	if len(pairs) == 0 {
		return spec.Template
	}

	return strings.NewReplacer(pairs...).Replace(spec.Template)
}

// Compose elaborates each spec provided, concatenating the results.
// The result is NOT normalized.
func Compose(specs ...Spec) string {
	var sb strings.Builder
	for _, spec := range specs {
		sb.WriteString(Elaborate(spec))
	}

	return sb.String()
}

// Normalize strips any leading and trailing separators from the fragment
// provided. The result never begins or ends with a separator.
func Normalize(fragment string) string {
	for {
		trimmed := strings.TrimSuffix(strings.TrimPrefix(fragment, Separator), Separator)
		if trimmed == fragment {
			return trimmed
		}

		fragment = trimmed
	}
}

// Contains reports whether the normalized chain provided contains a clause
// using the named filter.
func Contains(chain string, name string) bool {
	for _, clause := range strings.Split(chain, Separator) {
		clauseName, _, _ := strings.Cut(strings.TrimSpace(clause), "=")
		if clauseName == name {
			return true
		}
	}

	return false
}
