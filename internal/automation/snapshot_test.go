package automation

import (
	"strings"
	"testing"
)

func TestBuildSnapshotCompact(t *testing.T) {
	snap := buildSnapshot(axTreeResult().Nodes, false)

	// Root plus the four interactive nodes; the generic wrapper is
	// elided with the button hoisted to the root.
	if snap.Len() != 5 {
		t.Fatalf("indexed nodes = %d, want 5\n%s", snap.Len(), snap.Format())
	}
	root, ok := snap.Element("e1")
	if !ok || root.Role != "RootWebArea" {
		t.Fatalf("e1 = %+v, want the root area", root)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root children = %d, want button and combobox hoisted", len(root.Children))
	}
	if root.Children[0].Role != "button" || root.Children[0].ID != "e2" {
		t.Errorf("first child = %+v, want button e2", root.Children[0])
	}
	combo := root.Children[1]
	if combo.Role != "combobox" || len(combo.Children) != 2 {
		t.Fatalf("combobox = %+v, want two option children", combo)
	}
	if combo.Children[0].Name != "Apple" || combo.Children[1].Name != "Banana" {
		t.Errorf("options = %q, %q", combo.Children[0].Name, combo.Children[1].Name)
	}
}

func TestBuildSnapshotVerbose(t *testing.T) {
	snap := buildSnapshot(axTreeResult().Nodes, true)
	if snap.Len() != 6 {
		t.Fatalf("indexed nodes = %d, want all 6\n%s", snap.Len(), snap.Format())
	}
	// Ids follow document order, so the generic wrapper takes e2 and
	// the button moves to e3.
	if node, _ := snap.Element("e3"); node == nil || node.Role != "button" {
		t.Errorf("e3 = %+v, want button", node)
	}
}

func TestSnapshotIndexClosure(t *testing.T) {
	snap := buildSnapshot(axTreeResult().Nodes, false)

	seen := map[string]bool{}
	var walk func(nodes []*ElementNode)
	walk = func(nodes []*ElementNode) {
		for _, n := range nodes {
			if indexed, ok := snap.Element(n.ID); !ok || indexed != n {
				t.Errorf("tree node %s not reachable through the index", n.ID)
			}
			seen[n.ID] = true
			walk(n.Children)
		}
	}
	walk(snap.roots)
	if len(seen) != snap.Len() {
		t.Errorf("tree holds %d nodes, index holds %d", len(seen), snap.Len())
	}
}

func TestSnapshotFormat(t *testing.T) {
	out := buildSnapshot(axTreeResult().Nodes, false).Format()
	want := []string{
		`- RootWebArea "Demo" [e1]`,
		`  - button "Submit" [e2]`,
		`  - combobox "Fruit" [e3]`,
		`    - option "Apple" [e4]`,
		`    - option "Banana" [e5]`,
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != len(want) {
		t.Fatalf("formatted lines = %d, want %d:\n%s", len(lines), len(want), out)
	}
	for i, w := range want {
		if lines[i] != w {
			t.Errorf("line %d = %q, want %q", i, lines[i], w)
		}
	}
}

func TestSnapshotIgnoredNodesElided(t *testing.T) {
	nodes := axTreeResult().Nodes
	nodes[1].Ignored = true // the generic wrapper
	snap := buildSnapshot(nodes, true)

	root, _ := snap.Element("e1")
	if root == nil || len(root.Children) != 2 {
		t.Fatalf("root = %+v, want button hoisted past the ignored wrapper", root)
	}
	if root.Children[0].Role != "button" {
		t.Errorf("first child role = %q, want button", root.Children[0].Role)
	}
}
