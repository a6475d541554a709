package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenRe = regexp.MustCompile("{(.*?)}")

// Lookup resolves a reference against env. Supported forms are "@a.b" and
// "$.a.b" paths, "js:<expression>" and plain literals. Missing paths resolve to nil.
func Lookup(env map[string]any, ref string) (any, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "js:"):
		return EvalJs(strings.TrimPrefix(ref, "js:"), env)
	case strings.HasPrefix(ref, "@"):
		return lookupPath(env, "$."+strings.TrimPrefix(ref, "@")), nil
	case strings.HasPrefix(ref, "$"):
		return lookupPath(env, ref), nil
	}
	return ref, nil
}

func lookupPath(env map[string]any, path string) any {
	value, err := jsonpath.JsonPathLookup(env, path)
	if err != nil {
		return nil
	}
	return value
}

// ResolveString evaluates ref and renders the result as text.
func ResolveString(env map[string]any, ref string) (string, error) {
	if !strings.HasPrefix(strings.TrimSpace(ref), "@") && !strings.HasPrefix(strings.TrimSpace(ref), "$") &&
		!strings.HasPrefix(strings.TrimSpace(ref), "js:") {
		return ResolveTemplate(env, ref), nil
	}
	v, err := Lookup(env, ref)
	if err != nil {
		return "", err
	}
	return ToString(v), nil
}

// ResolveTemplate replaces every {$.path} or {@path} token in text.
func ResolveTemplate(env map[string]any, text string) string {
	tokens := tokenRe.FindAllString(text, -1)
	for _, token := range tokens {
		tmatch := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(tmatch, "$") && !strings.HasPrefix(tmatch, "@") {
			continue
		}
		value, _ := Lookup(env, tmatch)
		text = strings.ReplaceAll(text, token, ToString(value))
	}
	return text
}

func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return ToString(float64(val))
	case bool:
		return strconv.FormatBool(val)
	}
	return fmt.Sprintf("%v", v)
}

func ResolveParams(env map[string]any, inputParams map[string]any) map[string]any {
	data := make(map[string]any)
	resolveParams(env, inputParams, data)
	return data
}

func resolveParams(env map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output[k] = out
			resolveParams(env, val, out)
		case string:
			output[k] = ResolveTemplate(env, val)
		case []any:
			output[k] = resolveList(env, val)
		default:
			output[k] = v
		}
	}
}

func resolveList(env map[string]any, list []any) []any {
	var output []any
	for _, v := range list {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output = append(output, out)
			resolveParams(env, val, out)
		case string:
			output = append(output, ResolveTemplate(env, val))
		case []any:
			output = append(output, resolveList(env, val))
		default:
			output = append(output, v)
		}
	}
	return output
}
