package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod/lib/proto"
)

// ElementNode is one entry in a captured accessibility snapshot. The
// ID is an opaque handle (e1, e2, ...) valid only against the snapshot
// that produced it.
type ElementNode struct {
	ID       string
	Role     string
	Name     string
	Backend  proto.DOMBackendNodeID
	Children []*ElementNode
}

// Snapshot is an indexed accessibility tree. Capturing a new snapshot
// invalidates every id from the previous one.
type Snapshot struct {
	roots []*ElementNode
	byID  map[string]*ElementNode
}

// interactiveRoles is the keep set for compact snapshots. Anything
// else is elided, with its kept descendants hoisted to the nearest
// kept ancestor.
var interactiveRoles = map[string]bool{
	"button":           true,
	"link":             true,
	"textbox":          true,
	"textfield":        true,
	"searchbox":        true,
	"combobox":         true,
	"listbox":          true,
	"option":           true,
	"checkbox":         true,
	"radio":            true,
	"switch":           true,
	"slider":           true,
	"spinbutton":       true,
	"tab":              true,
	"menuitem":         true,
	"menuitemcheckbox": true,
	"menuitemradio":    true,
}

// CaptureSnapshot pulls the full accessibility tree of the bound view
// and indexes it under fresh opaque ids. With verbose false only
// interactive elements survive, which is usually what an automation
// caller wants to look at.
func (c *Context) CaptureSnapshot(ctx context.Context, verbose bool) (*Snapshot, error) {
	if _, err := c.boundTarget(); err != nil {
		return nil, err
	}
	var res proto.AccessibilityGetFullAXTreeResult
	if err := c.call(ctx, &proto.AccessibilityGetFullAXTree{}, &res); err != nil {
		return nil, err
	}
	snap := buildSnapshot(res.Nodes, verbose)
	c.snapshot = snap
	return snap, nil
}

// CurrentSnapshot returns the last captured snapshot, or nil.
func (c *Context) CurrentSnapshot() *Snapshot {
	return c.snapshot
}

// resolveElement maps an opaque id to a live node of the current
// snapshot. Ids never outlive the snapshot that issued them. An
// unbound context is a binding failure, not a stale id.
func (c *Context) resolveElement(id string) (*ElementNode, error) {
	if _, err := c.boundTarget(); err != nil {
		return nil, err
	}
	if c.snapshot == nil {
		return nil, errElementNotFound(id)
	}
	node, ok := c.snapshot.byID[id]
	if !ok || node.Backend == 0 {
		return nil, errElementNotFound(id)
	}
	return node, nil
}

type snapshotBuilder struct {
	byAXID  map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode
	verbose bool
	seq     int
	byID    map[string]*ElementNode
}

// buildSnapshot indexes the flat node list returned by the protocol.
// Ids are handed out in document (pre-order) position so e1 is always
// the root area.
func buildSnapshot(nodes []*proto.AccessibilityAXNode, verbose bool) *Snapshot {
	b := &snapshotBuilder{
		byAXID:  make(map[proto.AccessibilityAXNodeID]*proto.AccessibilityAXNode, len(nodes)),
		verbose: verbose,
		byID:    make(map[string]*ElementNode),
	}
	referenced := make(map[proto.AccessibilityAXNodeID]bool)
	for _, n := range nodes {
		b.byAXID[n.NodeID] = n
		for _, child := range n.ChildIDs {
			referenced[child] = true
		}
	}

	var roots []*ElementNode
	for _, n := range nodes {
		if referenced[n.NodeID] {
			continue
		}
		// The tree root is always kept so hoisted descendants have an
		// ancestor to land on.
		roots = append(roots, b.walk(n, true)...)
	}
	return &Snapshot{roots: roots, byID: b.byID}
}

// walk descends one node, returning the kept nodes this subtree
// contributes to its parent. Elided nodes hand their kept descendants
// straight up.
func (b *snapshotBuilder) walk(ax *proto.AccessibilityAXNode, forceKeep bool) []*ElementNode {
	if ax == nil {
		return nil
	}
	if ax.Ignored {
		return b.walkChildren(ax)
	}

	role := axString(ax.Role)
	name := axString(ax.Name)
	keep := forceKeep || b.verbose || interactiveRoles[strings.ToLower(role)]
	if !keep {
		return b.walkChildren(ax)
	}

	b.seq++
	node := &ElementNode{
		ID:      fmt.Sprintf("e%d", b.seq),
		Role:    role,
		Name:    name,
		Backend: ax.BackendDOMNodeID,
	}
	b.byID[node.ID] = node
	node.Children = b.walkChildren(ax)
	return []*ElementNode{node}
}

func (b *snapshotBuilder) walkChildren(ax *proto.AccessibilityAXNode) []*ElementNode {
	var kept []*ElementNode
	for _, childID := range ax.ChildIDs {
		kept = append(kept, b.walk(b.byAXID[childID], false)...)
	}
	return kept
}

func axString(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	return v.Value.Str()
}

// Format renders the snapshot as an indented outline, one node per
// line: `- role "name" [e3]`.
func (s *Snapshot) Format() string {
	var sb strings.Builder
	for _, root := range s.roots {
		formatNode(&sb, root, 0)
	}
	return sb.String()
}

func formatNode(sb *strings.Builder, node *ElementNode, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString("- ")
	sb.WriteString(node.Role)
	if node.Name != "" {
		fmt.Fprintf(sb, " %q", node.Name)
	}
	fmt.Fprintf(sb, " [%s]\n", node.ID)
	for _, child := range node.Children {
		formatNode(sb, child, depth+1)
	}
}

// Element looks up a node by its opaque id.
func (s *Snapshot) Element(id string) (*ElementNode, bool) {
	node, ok := s.byID[id]
	return node, ok
}

// Len reports how many nodes the snapshot indexed.
func (s *Snapshot) Len() int {
	return len(s.byID)
}
