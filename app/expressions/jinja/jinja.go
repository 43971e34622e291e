// Package jinja evaluates "{% ... %}" expressions with pongo2. Fields are
// reachable under "_", e.g. "{% _.amount > 100 %}".
package jinja

import (
	"fmt"
	"regexp"

	"conductor/app/expressions/builtin"

	"github.com/flosch/pongo2/v4"
)

var (
	reIdentifier = regexp.MustCompile(`\{\%.*\%\}`)
	reExpression = regexp.MustCompile(`\{\%(.*?)\%\}`)
)

type JinjaExpression struct{}

func (JinjaExpression) Match(expr string) bool {
	return Match(expr)
}

func (JinjaExpression) Evaluate(expr string, data map[string]interface{}) (interface{}, error) {
	return Evaluate(expr, data)
}

func Match(expr string) bool {
	return reIdentifier.MatchString(expr)
}

func render(tplStr string, data map[string]interface{}) (string, error) {
	tpl, err := pongo2.FromString(tplStr)
	if err != nil {
		return "", err
	}
	ctx := pongo2.Context{"_": data}
	for name, fn := range builtin.BuiltinFunc {
		ctx[name] = fn
	}
	return tpl.Execute(ctx)
}

func Evaluate(expr string, data map[string]interface{}) (interface{}, error) {
	tplStr, lone := builtin.Interpolate(reExpression, expr, func(inner string) string {
		return fmt.Sprintf("{{ json(%s)|safe }}", inner)
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
