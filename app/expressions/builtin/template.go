package builtin

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Interpolate rewrites the delimited segments of expr found by re into
// "{{ ... }}" actions. When expr is a single segment it is handed to lone
// instead so the caller can ask for a typed (JSON) result.
func Interpolate(re *regexp.Regexp, expr string, lone func(inner string) string) (string, bool) {
	matched := re.FindAllStringSubmatchIndex(expr, -1)
	if len(matched) == 1 && matched[0][0] == 0 && matched[0][1] == len(expr) {
		return lone(strings.TrimSpace(expr[matched[0][2]:matched[0][3]])), true
	}

	var b strings.Builder
	last := 0
	for _, m := range matched {
		b.WriteString(expr[last:m[0]])
		b.WriteString("{{ ")
		b.WriteString(strings.TrimSpace(expr[m[2]:m[3]]))
		b.WriteString(" }}")
		last = m[1]
	}
	b.WriteString(expr[last:])
	return b.String(), false
}

// Decode parses the JSON printed by a lone expression. Empty output is nil.
func Decode(output string) (interface{}, error) {
	if output == "" {
		return nil, nil
	}
	var value interface{}
	if err := json.Unmarshal([]byte(output), &value); err != nil {
		return nil, fmt.Errorf("%s, output: '%s'", err.Error(), output)
	}
	return value, nil
}
