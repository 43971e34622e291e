package expressions

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"conductor/app/expressions/golang"
	"conductor/app/expressions/jinja"
)

type Expression interface {
	Match(expr string) bool
	Evaluate(expr string, data map[string]interface{}) (interface{}, error)
}

var (
	builtinExpressions = []Expression{
		golang.GolangExpression{},
		jinja.JinjaExpression{},
	}
)

// IsExpression reports whether expr holds Go template or Jinja markup.
func IsExpression(expr string) bool {
	for _, expression := range builtinExpressions {
		if expression.Match(expr) {
			return true
		}
	}
	return false
}

// Evaluate runs expr against dataCtx. A bare key yields its value and
// anything else is returned as a literal.
func Evaluate(expr string, dataCtx map[string]interface{}) (interface{}, error) {
	for _, expression := range builtinExpressions {
		if expression.Match(expr) {
			return expression.Evaluate(expr, dataCtx)
		}
	}
	result, ok := dataCtx[expr]
	if ok {
		return result, nil
	}
	return expr, nil
}

// Render evaluates expr and formats the result as text.
func Render(expr string, dataCtx map[string]interface{}) (string, error) {
	if !IsExpression(expr) {
		return expr, nil
	}
	result, err := Evaluate(expr, dataCtx)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	if s, ok := result.(string); ok {
		return s, nil
	}
	return fmt.Sprint(result), nil
}

// IsTruthy maps an evaluation result onto a predicate outcome: booleans as
// is, strings parsed as booleans or non-empty, numbers non-zero.
func IsTruthy(value interface{}) bool {
	if value == nil {
		return false
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		s := strings.TrimSpace(v)
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return s != "" && !strings.EqualFold(s, "none") && !strings.EqualFold(s, "null")
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	}
	return true
}
