package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testEnv() map[string]any {
	return map[string]any{
		"input": "Yes",
		"results": map[string]any{
			"age": float64(21),
		},
		"contact": map[string]any{
			"name":   "asha",
			"fields": map[string]any{"city": "Pune"},
		},
	}
}

func TestLookup(t *testing.T) {
	env := testEnv()
	tests := map[string]struct {
		ref  string
		want string
	}{
		"input":         {ref: "@input", want: "Yes"},
		"result":        {ref: "@results.age", want: "21"},
		"contact field": {ref: "@contact.fields.city", want: "Pune"},
		"jsonpath":      {ref: "$.contact.name", want: "asha"},
		"missing":       {ref: "@results.nope", want: ""},
		"literal":       {ref: "hello", want: "hello"},
		"js":            {ref: "js:$.results.age + 1", want: "22"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ResolveString(env, tc.ref)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveTemplate(t *testing.T) {
	out := ResolveTemplate(testEnv(), "Hi {@contact.name} from {$.contact.fields.city}, keep {braces}")
	require.Equal(t, "Hi asha from Pune, keep {braces}", out)
}

func TestResolveParams(t *testing.T) {
	params := map[string]any{
		"name": "{@contact.name}",
		"nested": map[string]any{
			"age": "{$.results.age}",
		},
		"list":  []any{"{@input}", 3},
		"count": 5,
	}
	out := ResolveParams(testEnv(), params)
	require.Equal(t, "asha", out["name"])
	require.Equal(t, "21", out["nested"].(map[string]any)["age"])
	require.Equal(t, []any{"Yes", 3}, out["list"])
	require.Equal(t, 5, out["count"])
}

func TestEvalJsError(t *testing.T) {
	_, err := EvalJs("this is not js", testEnv())
	require.Error(t, err)
}
