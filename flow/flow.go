package flow

import (
	"github.com/mohitkumar/convoflow/action"
	"github.com/mohitkumar/convoflow/model"
)

type RefKind int

const REF_NODE RefKind = 1
const REF_EXIT RefKind = 2
const REF_ACTION RefKind = 3
const REF_CASE RefKind = 4

// Ref is one entry of the resolution table built at compile time.
type Ref struct {
	Kind   RefKind
	Node   *Node
	Exit   *Exit
	Action action.Action
	Case   *Case
}

// Flow is an immutable compiled flow version. All lookups go through the
// resolution table.
type Flow struct {
	uuid           string
	id             int64
	orgId          int64
	name           string
	status         model.FlowStatus
	keywords       []string
	ignoreKeywords bool
	root           string
	table          map[string]Ref
	nodeOrder      []string
}

func (f *Flow) Uuid() string             { return f.uuid }
func (f *Flow) Id() int64                { return f.id }
func (f *Flow) OrganizationId() int64    { return f.orgId }
func (f *Flow) Name() string             { return f.name }
func (f *Flow) Status() model.FlowStatus { return f.status }
func (f *Flow) IgnoreKeywords() bool     { return f.ignoreKeywords }
func (f *Flow) RootUuid() string         { return f.root }
func (f *Flow) Keywords() []string       { return append([]string(nil), f.keywords...) }
func (f *Flow) NodeCount() int           { return len(f.nodeOrder) }

func (f *Flow) Resolve(uuid string) (Ref, bool) {
	ref, ok := f.table[uuid]
	return ref, ok
}

func (f *Flow) Node(uuid string) (*Node, bool) {
	ref, ok := f.table[uuid]
	if !ok || ref.Kind != REF_NODE {
		return nil, false
	}
	return ref.Node, true
}

func (f *Flow) Root() *Node {
	n, _ := f.Node(f.root)
	return n
}

type NodeKind int

const ACTION_NODE NodeKind = 1
const ROUTER_NODE NodeKind = 2
const MIXED_NODE NodeKind = 3
const UNSUPPORTED_NODE NodeKind = 4

type Node struct {
	uuid    string
	actions []action.Action
	exits   []*Exit
	router  *Router
}

func (n *Node) Uuid() string             { return n.uuid }
func (n *Node) Actions() []action.Action { return n.actions }
func (n *Node) Exits() []*Exit           { return n.exits }
func (n *Node) Router() *Router          { return n.router }
func (n *Node) HasActions() bool         { return len(n.actions) != 0 }
func (n *Node) HasRouter() bool          { return n.router != nil }

func (n *Node) Kind() NodeKind {
	switch {
	case n.HasActions() && n.HasRouter():
		return MIXED_NODE
	case n.HasActions():
		return ACTION_NODE
	case n.HasRouter():
		return ROUTER_NODE
	}
	return UNSUPPORTED_NODE
}

// FirstExit is taken once all actions of a router-less node completed.
func (n *Node) FirstExit() *Exit {
	if len(n.exits) == 0 {
		return nil
	}
	return n.exits[0]
}

func (n *Node) ActionIndex(actionUuid string) int {
	for i, act := range n.actions {
		if act.GetUuid() == actionUuid {
			return i
		}
	}
	return -1
}

type Exit struct {
	uuid        string
	destination string
}

func (e *Exit) Uuid() string        { return e.uuid }
func (e *Exit) Destination() string { return e.destination }
func (e *Exit) IsTerminal() bool    { return len(e.destination) == 0 }
