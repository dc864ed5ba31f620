package directory

import (
	"strings"
	"testing"

	"github.com/edgedir/rd/pkg/linkformat"
)

func mustLinks(t *testing.T, doc string) []linkformat.Link {
	t.Helper()
	links, diags := linkformat.Parse(doc)
	if len(diags) != 0 {
		t.Fatalf("parse diagnostics: %v", diags)
	}
	return links
}

func TestEnsurePath_SharedPrefix(t *testing.T) {
	root := newNode("node1")
	a := root.ensurePath([]string{"sensors", "temp"})
	b := root.ensurePath([]string{"sensors", "humidity"})

	if a == b {
		t.Fatal("distinct leaves share a node")
	}
	if len(root.children) != 1 {
		t.Errorf("root has %d children, want 1 (shared 'sensors')", len(root.children))
	}
	if got := root.ensurePath([]string{"sensors", "temp"}); got != a {
		t.Error("ensurePath created a duplicate for an existing path")
	}
}

func TestApplyLink_ReplacesAttributes(t *testing.T) {
	root := newNode("node1")

	root.applyLink(mustLinks(t, `</s/t>;rt=old;if=sensor`)[0], "node1")
	root.applyLink(mustLinks(t, `</s/t>;rt=new`)[0], "node1")

	node := root.ensurePath([]string{"s", "t"})
	if v, _ := node.attrs.Get("rt"); v != "new" {
		t.Errorf("rt: got %q, want new", v)
	}
	if node.attrs.Has("if") {
		t.Error("stale 'if' attribute survived clear-then-copy")
	}
	if v, _ := node.attrs.Get(linkformat.AttrEndpoint); v != "node1" {
		t.Errorf("ep marker: got %q, want node1", v)
	}
}

func TestSerialize_SkipsUnmarkedIntermediates(t *testing.T) {
	root := newNode("node1")
	root.applyLink(mustLinks(t, `</deeply/nested/leaf>;rt=light`)[0], "node1")

	out := root.serialize("coap://h:1", nil)
	if out != `<coap://h:1/deeply/nested/leaf>;rt="light";ep="node1"` {
		t.Errorf("unexpected serialization: %q", out)
	}
}

func TestSerialize_Filter(t *testing.T) {
	root := newNode("node1")
	root.applyLink(mustLinks(t, `</a>;rt=light`)[0], "node1")
	root.applyLink(mustLinks(t, `</b>;rt=temperature`)[0], "node1")

	out := root.serialize("", linkformat.ParseQuery("rt=light"))
	if strings.Contains(out, "</b>") {
		t.Errorf("filtered entry leaked: %q", out)
	}
	if !strings.Contains(out, "</a>") {
		t.Errorf("matching entry missing: %q", out)
	}
}

func TestSerialize_DeepTreeIterative(t *testing.T) {
	// A path deep enough to overflow the stack if traversal recursed.
	segments := make([]string, 50000)
	for i := range segments {
		segments[i] = "s"
	}
	root := newNode("node1")
	leaf := root.ensurePath(segments)
	leaf.attrs.Set(linkformat.AttrEndpoint, "node1")

	out := root.serialize("", nil)
	if got := strings.Count(out, "<"); got != 1 {
		t.Errorf("got %d entries, want 1", got)
	}
	if !strings.HasPrefix(out, "</s/s/") {
		t.Errorf("unexpected prefix: %.40q", out)
	}
}

func TestSerialize_PreservesInsertionOrder(t *testing.T) {
	root := newNode("node1")
	root.applyLink(mustLinks(t, `</z>;rt=a`)[0], "node1")
	root.applyLink(mustLinks(t, `</a>;rt=b`)[0], "node1")

	out := root.serialize("", nil)
	if strings.Index(out, "</z>") > strings.Index(out, "</a>") {
		t.Errorf("entries reordered: %q", out)
	}
}
