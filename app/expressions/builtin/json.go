package builtin

import (
	"encoding/json"
	"errors"
	"strings"
)

// BuiltinFunc is shared by the Go template and Jinja evaluators.
var BuiltinFunc = map[string]interface{}{
	"json":     builtinJSONFunction,
	"lower":    strings.ToLower,
	"contains": strings.Contains,
}

func builtinJSONFunction(values ...interface{}) (interface{}, error) {
	if len(values) == 0 {
		return nil, errors.New("json needs one argument")
	}
	output, err := json.Marshal(values[0])
	if err != nil {
		return nil, errors.New("invalid data")
	}
	return string(output), nil
}
