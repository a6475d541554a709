package flow

import (
	"time"

	"github.com/mohitkumar/convoflow/action"
	"github.com/mohitkumar/convoflow/model"
)

// Compile turns a flow document into a Flow. It never fails outright: every
// missing required field and every unresolved reference is collected, and a
// best-effort Flow is returned alongside the errors.
func Compile(orgId int64, doc *model.FlowDocument) (*Flow, ValidationErrors) {
	var errs ValidationErrors
	fl := &Flow{
		uuid:           doc.Uuid,
		id:             doc.Id,
		orgId:          orgId,
		name:           doc.Name,
		status:         doc.Status,
		ignoreKeywords: doc.IgnoreKeywords,
		table:          make(map[string]Ref),
	}
	if len(fl.status) == 0 {
		fl.status = model.PUBLISHED
	}
	if len(doc.Uuid) == 0 {
		errs.add("", "uuid", "flow uuid is required")
	}
	if !model.ValidateFlowStatus(fl.status) {
		errs.add("", "status", "invalid status %q", fl.status)
	}
	if len(doc.Nodes) == 0 {
		errs.add("", "nodes", "flow has no nodes")
	}
	seenKeyword := make(map[string]bool)
	for _, k := range doc.Keywords {
		nk := model.NormalizeKeyword(k)
		if len(nk) == 0 || seenKeyword[nk] {
			continue
		}
		seenKeyword[nk] = true
		fl.keywords = append(fl.keywords, nk)
	}

	// first pass registers nodes and exits so references can point forward
	nodes := make([]*Node, 0, len(doc.Nodes))
	for i := range doc.Nodes {
		def := &doc.Nodes[i]
		node := &Node{uuid: def.Uuid}
		nodes = append(nodes, node)
		if len(def.Uuid) == 0 {
			errs.add("", "uuid", "node at position %d has no uuid", i)
			continue
		}
		if _, dup := fl.table[def.Uuid]; dup {
			errs.add(def.Uuid, "uuid", "duplicate uuid")
			continue
		}
		fl.table[def.Uuid] = Ref{Kind: REF_NODE, Node: node}
		fl.nodeOrder = append(fl.nodeOrder, def.Uuid)
		if len(fl.root) == 0 {
			fl.root = def.Uuid
		}
		for j := range def.Exits {
			exit := &Exit{uuid: def.Exits[j].Uuid, destination: def.Exits[j].DestinationUuid}
			if len(exit.uuid) == 0 {
				errs.add(def.Uuid, "exits", "exit at position %d has no uuid", j)
				continue
			}
			if _, dup := fl.table[exit.uuid]; dup {
				errs.add(def.Uuid, "exits", "duplicate uuid %s", exit.uuid)
				continue
			}
			fl.table[exit.uuid] = Ref{Kind: REF_EXIT, Exit: exit}
			node.exits = append(node.exits, exit)
		}
	}

	for i := range doc.Nodes {
		def := &doc.Nodes[i]
		node := nodes[i]
		if len(def.Uuid) == 0 {
			continue
		}
		// one structural error per node, the first missing piece wins
		switch {
		case def.Actions == nil:
			errs.add(def.Uuid, "actions", "required field missing")
		case def.Exits == nil:
			errs.add(def.Uuid, "exits", "required field missing")
		case len(def.Actions) == 0 && def.Router == nil:
			errs.add(def.Uuid, "actions", "node needs at least one action or a router")
		}
		for j, raw := range def.Actions {
			act, err := action.Decode(raw)
			if err != nil {
				errs.add(def.Uuid, "actions", "action at position %d: %s", j, err.Error())
				continue
			}
			if _, dup := fl.table[act.GetUuid()]; dup {
				errs.add(def.Uuid, "actions", "duplicate uuid %s", act.GetUuid())
				continue
			}
			fl.table[act.GetUuid()] = Ref{Kind: REF_ACTION, Action: act}
			node.actions = append(node.actions, act)
		}
		for _, exit := range node.exits {
			if exit.IsTerminal() {
				continue
			}
			if _, ok := fl.Node(exit.destination); !ok {
				errs.add(def.Uuid, "exits", "exit %s points to unknown node %s", exit.uuid, exit.destination)
			}
		}
		// a node without exits was already reported, its router references can not resolve
		if def.Router != nil && def.Exits != nil {
			node.router = compileRouter(fl, node, def.Router, &errs)
		}
	}
	return fl, errs
}

func compileRouter(fl *Flow, node *Node, def *model.RouterDef, errs *ValidationErrors) *Router {
	r := &Router{operand: def.Operand, resultName: def.ResultName}
	if len(def.Operand) == 0 {
		errs.add(node.uuid, "router", "operand is required")
	}
	ownExit := func(uuid string) *Exit {
		for _, e := range node.exits {
			if e.uuid == uuid {
				return e
			}
		}
		return nil
	}
	for i, cd := range def.Cases {
		exit := ownExit(cd.ExitUuid)
		if exit == nil {
			errs.add(node.uuid, "router", "case at position %d references unknown exit %s", i, cd.ExitUuid)
			continue
		}
		c := &Case{uuid: cd.Uuid, exit: exit, values: append([]string{cd.Value}, cd.Arguments...)}
		if len(cd.Uuid) != 0 {
			fl.table[cd.Uuid] = Ref{Kind: REF_CASE, Case: c}
		}
		r.cases = append(r.cases, c)
	}
	if len(def.DefaultExitUuid) != 0 {
		if r.defaultExit = ownExit(def.DefaultExitUuid); r.defaultExit == nil {
			errs.add(node.uuid, "router", "default exit %s does not exist", def.DefaultExitUuid)
		}
	}
	if def.Wait != nil {
		r.wait = &Wait{timeout: time.Duration(def.Wait.TimeoutSeconds) * time.Second}
		if def.Wait.TimeoutSeconds < 0 {
			errs.add(node.uuid, "router", "wait timeout can not be negative")
		}
		if len(def.Wait.TimeoutExitUuid) != 0 {
			if r.wait.timeoutExit = ownExit(def.Wait.TimeoutExitUuid); r.wait.timeoutExit == nil {
				errs.add(node.uuid, "router", "timeout exit %s does not exist", def.Wait.TimeoutExitUuid)
			}
		}
	}
	return r
}
