package util

import (
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
)

// EvalJs runs expression with env bound to $ and returns the exported value
// of its last statement.
func EvalJs(expression string, env map[string]any) (any, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	vm := goja.New()
	if _, err := vm.RunString(fmt.Sprintf("var $ = %s;\n", data)); err != nil {
		return nil, fmt.Errorf("error binding javascript env %w", err)
	}
	val, err := vm.RunString(expression)
	if err != nil {
		return nil, fmt.Errorf("error executing javascript %w", err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}
