// Package golang evaluates "{{ ... }}" expressions with text/template.
package golang

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"

	"conductor/app/expressions/builtin"
)

var (
	reIdentifier = regexp.MustCompile(`\{\{.*\}\}`)
	reExpression = regexp.MustCompile(`\{\{(.*?)\}\}`)
)

type GolangExpression struct{}

func (GolangExpression) Match(expr string) bool {
	return Match(expr)
}

func (GolangExpression) Evaluate(expr string, data map[string]interface{}) (interface{}, error) {
	return Evaluate(expr, data)
}

func Match(expr string) bool {
	return reIdentifier.MatchString(expr)
}

func render(tplStr string, data map[string]interface{}) (string, error) {
	tpl, err := template.New("expr").Funcs(builtin.BuiltinFunc).Parse(tplStr)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Evaluate returns a typed value for a lone expression like "{{ eq .x 1 }}"
// and the rendered text when expressions are mixed with literal text.
func Evaluate(expr string, data map[string]interface{}) (interface{}, error) {
	tplStr, lone := builtin.Interpolate(reExpression, expr, func(inner string) string {
		return fmt.Sprintf("{{ json (%s) }}", inner)
	})
	output, err := render(tplStr, data)
	if err != nil {
		return nil, err
	}
	if lone {
		return builtin.Decode(output)
	}
	return output, nil
}
