package condition

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
)

var segmentPattern = regexp.MustCompile(`\{\{\s*(.*?)\s*\}\}`)

// HasTemplate reports whether s contains template markup.
func HasTemplate(s string) bool {
	return strings.Contains(s, "{{")
}

// Render replaces every "{{ expression }}" segment with its value evaluated
// against bindings. nil renders as an empty string; maps and slices as JSON.
func Render(tmpl string, bindings map[string]any) (string, error) {
	var firstErr error
	out := segmentPattern.ReplaceAllStringFunc(tmpl, func(segment string) string {
		if firstErr != nil {
			return segment
		}
		source := segmentPattern.FindStringSubmatch(segment)[1]
		if source == "" {
			return ""
		}

		value, err := expr.Eval(source, bindings)
		if err != nil {
			firstErr = fmt.Errorf("failed to render %q: %w", segment, err)
			return segment
		}
		return format(value)
	})
	if firstErr != nil {
		return tmpl, firstErr
	}
	return out, nil
}

func format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case map[string]any, []any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}
