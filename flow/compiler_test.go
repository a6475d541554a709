package flow

import (
	"testing"

	"github.com/mohitkumar/convoflow/action"
	"github.com/stretchr/testify/require"
)

const surveyFlow = `{
  "uuid": "survey",
  "id": 7,
  "name": "Survey",
  "status": "published",
  "keywords": [" Survey ", "poll", "survey"],
  "nodes": [
    {
      "uuid": "ask",
      "actions": [
        {"uuid": "ask-send", "type": "send_msg", "text": "Do you like tea?"},
        {"uuid": "ask-wait", "type": "wait_for_response", "result_name": "tea"}
      ],
      "exits": [{"uuid": "ask-exit", "destination_uuid": "route"}]
    },
    {
      "uuid": "route",
      "actions": [],
      "exits": [
        {"uuid": "route-yes", "destination_uuid": "thanks"},
        {"uuid": "route-no", "destination_uuid": "thanks"},
        {"uuid": "route-other"}
      ],
      "router": {
        "operand": "@input",
        "cases": [
          {"uuid": "case-yes", "value": "yes", "arguments": ["y"], "exit_uuid": "route-yes"},
          {"uuid": "case-no", "value": "no", "exit_uuid": "route-no"}
        ],
        "default_exit_uuid": "route-other",
        "result_name": "likes_tea"
      }
    },
    {
      "uuid": "thanks",
      "actions": [{"uuid": "thanks-send", "type": "send_msg", "text": "Thanks"}],
      "exits": [{"uuid": "thanks-exit"}]
    }
  ]
}`

func TestCompile(t *testing.T) {
	doc, err := ParseDocument([]byte(surveyFlow))
	require.NoError(t, err)
	fl, errs := Compile(1, doc)
	require.Empty(t, errs)
	require.Equal(t, "survey", fl.Uuid())
	require.Equal(t, int64(7), fl.Id())
	require.Equal(t, int64(1), fl.OrganizationId())
	require.Equal(t, []string{"survey", "poll"}, fl.Keywords())
	require.Equal(t, "ask", fl.Root().Uuid())
	require.Equal(t, 3, fl.NodeCount())

	ask, ok := fl.Node("ask")
	require.True(t, ok)
	require.Equal(t, ACTION_NODE, ask.Kind())
	require.Len(t, ask.Actions(), 2)
	require.Equal(t, action.WAIT_FOR_RESPONSE, ask.Actions()[1].GetType())
	require.Equal(t, 1, ask.ActionIndex("ask-wait"))

	route, _ := fl.Node("route")
	require.Equal(t, ROUTER_NODE, route.Kind())

	for uuid, kind := range map[string]RefKind{
		"ask":         REF_NODE,
		"route-yes":   REF_EXIT,
		"ask-send":    REF_ACTION,
		"case-no":     REF_CASE,
		"thanks-exit": REF_EXIT,
	} {
		ref, ok := fl.Resolve(uuid)
		require.True(t, ok, uuid)
		require.Equal(t, kind, ref.Kind, uuid)
	}
	_, ok = fl.Node("route-yes")
	require.False(t, ok)

	thanks, _ := fl.Node("thanks")
	require.True(t, thanks.FirstExit().IsTerminal())
}

func TestCompileMissingExits(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
	  "uuid": "broken",
	  "nodes": [
	    {"uuid": "n1", "actions": [{"uuid": "a1", "type": "send_msg", "text": "hi"}]},
	    {"uuid": "n2", "actions": [{"uuid": "a2", "type": "send_msg", "text": "hi"}], "exits": [{"uuid": "e2"}]},
	    {"uuid": "n3", "actions": [{"uuid": "a3", "type": "send_msg", "text": "bye"}], "router": {"operand": "@input", "cases": [{"uuid": "c", "value": "x", "exit_uuid": "nope"}]}},
	    {"uuid": "n5", "actions": []},
	    {"uuid": "n6"}
	  ]
	}`))
	require.NoError(t, err)
	fl, errs := Compile(1, doc)
	require.NotNil(t, fl)
	require.Len(t, errs, 4)
	require.Len(t, errs.ForNode("n5"), 1)
	require.Equal(t, "exits", errs.ForNode("n5")[0].Field)
	require.Len(t, errs.ForNode("n6"), 1)
	require.Equal(t, "actions", errs.ForNode("n6")[0].Field)
	require.Len(t, errs.ForNode("n1"), 1)
	require.Equal(t, "exits", errs.ForNode("n1")[0].Field)
	require.Len(t, errs.ForNode("n3"), 1)
	require.Empty(t, errs.ForNode("n2"))
}

func TestCompileUnresolvedReferences(t *testing.T) {
	doc, err := ParseDocument([]byte(`{
	  "uuid": "refs",
	  "nodes": [
	    {"uuid": "n1", "actions": [], "exits": [{"uuid": "e1", "destination_uuid": "ghost"}, {"uuid": "e2"}],
	     "router": {"operand": "@input", "cases": [{"uuid": "c1", "value": "a", "exit_uuid": "e9"}], "default_exit_uuid": "e8"}},
	    {"actions": [], "exits": []},
	    {"uuid": "n3", "actions": [], "exits": []},
	    {"uuid": "n4", "actions": [{"uuid": "a4", "type": "teleport"}], "exits": []}
	  ]
	}`))
	require.NoError(t, err)
	fl, errs := Compile(3, doc)
	require.NotNil(t, fl)
	require.Len(t, errs.ForNode("n1"), 3)
	require.Len(t, errs.ForNode(""), 1)
	require.Len(t, errs.ForNode("n3"), 1)
	require.Len(t, errs.ForNode("n4"), 1)
	n3, _ := fl.Node("n3")
	require.Equal(t, UNSUPPORTED_NODE, n3.Kind())
	require.Contains(t, errs.Error(), "ghost")
}

func TestRouterMatch(t *testing.T) {
	doc, err := ParseDocument([]byte(surveyFlow))
	require.NoError(t, err)
	fl, _ := Compile(1, doc)
	route, _ := fl.Node("route")
	r := route.Router()

	tests := map[string]struct {
		value    string
		exit     string
		category string
	}{
		"exact":          {value: "yes", exit: "route-yes", category: "yes"},
		"case and space": {value: "  No ", exit: "route-no", category: "no"},
		"argument":       {value: "Y", exit: "route-yes", category: "yes"},
		"default":        {value: "maybe", exit: "route-other", category: OTHER},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			exit, category, ok := r.Match(tc.value)
			require.True(t, ok)
			require.Equal(t, tc.exit, exit.Uuid())
			require.Equal(t, tc.category, category)
		})
	}

	noDefault := &Router{operand: "@input", cases: r.cases}
	exit, _, ok := noDefault.Match("maybe")
	require.False(t, ok)
	require.Nil(t, exit)
}
