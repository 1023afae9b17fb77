package store

import (
	"testing"
	"time"
)

func flatComment(id string, parent *string, at time.Time) Comment {
	return Comment{ID: id, PostID: "p1", AuthorID: "u", Content: id, ParentID: parent, CreatedAt: at}
}

// ─── Forest assembly ────────────────────────────────────────────────────────

func TestBuildForest_NestsByParent(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r1 := "r1"
	c1 := "c1"
	in := []Comment{
		flatComment("r1", nil, t0),
		flatComment("c1", &r1, t0.Add(time.Minute)),
		flatComment("g1", &c1, t0.Add(2*time.Minute)),
		flatComment("r2", nil, t0.Add(3*time.Minute)),
	}

	nodes, pg := BuildForest(in, ThreadOptions{Order: OrderOldest})
	if len(nodes) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(nodes))
	}
	if pg.Total != 2 {
		t.Fatalf("pagination counts roots only: expected 2, got %d", pg.Total)
	}
	if nodes[0].Comment.ID != "r1" || nodes[1].Comment.ID != "r2" {
		t.Fatalf("oldest-first root order wrong: %s, %s", nodes[0].Comment.ID, nodes[1].Comment.ID)
	}
	if len(nodes[0].Replies) != 1 || nodes[0].Replies[0].Comment.ID != "c1" {
		t.Fatal("expected c1 nested under r1")
	}
	if len(nodes[0].Replies[0].Replies) != 1 || nodes[0].Replies[0].Replies[0].Comment.ID != "g1" {
		t.Fatal("expected g1 nested under c1")
	}
	if nodes[1].Replies == nil {
		t.Fatal("leaf replies must be an empty slice, not nil")
	}
}

func TestBuildForest_NewestFirstDefault(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []Comment{
		flatComment("a", nil, t0),
		flatComment("b", nil, t0.Add(time.Hour)),
	}
	nodes, _ := BuildForest(in, ThreadOptions{})
	if nodes[0].Comment.ID != "b" {
		t.Fatalf("expected newest root first, got %s", nodes[0].Comment.ID)
	}
}

func TestBuildForest_TiesBreakOnID(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	in := []Comment{
		flatComment("a", nil, t0),
		flatComment("b", nil, t0),
	}
	nodes, _ := BuildForest(in, ThreadOptions{Order: OrderNewest})
	if nodes[0].Comment.ID != "b" || nodes[1].Comment.ID != "a" {
		t.Fatal("equal timestamps must order deterministically by id")
	}
}

func TestBuildForest_DepthBoundCountsOmitted(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := "r"
	c := "c"
	g := "g"
	in := []Comment{
		flatComment("r", nil, t0),
		flatComment("c", &r, t0.Add(time.Minute)),
		flatComment("g", &c, t0.Add(2*time.Minute)),
		flatComment("gg1", &g, t0.Add(3*time.Minute)),
		flatComment("gg2", &g, t0.Add(4*time.Minute)),
	}

	nodes, _ := BuildForest(in, ThreadOptions{MaxDepth: 2, Order: OrderOldest})
	deep := nodes[0].Replies[0].Replies[0]
	if deep.Comment.ID != "g" {
		t.Fatalf("expected g at the bound, got %s", deep.Comment.ID)
	}
	if len(deep.Replies) != 0 {
		t.Fatal("children past the bound must not be attached")
	}
	if deep.OmittedReplies != 2 {
		t.Fatalf("expected 2 omitted replies, got %d", deep.OmittedReplies)
	}
}

func TestBuildForest_PaginatesRoots(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var in []Comment
	for i := 0; i < 5; i++ {
		in = append(in, flatComment(string(rune('a'+i)), nil, t0.Add(time.Duration(i)*time.Minute)))
	}

	nodes, pg := BuildForest(in, ThreadOptions{Page: 2, PageSize: 2, Order: OrderOldest})
	if len(nodes) != 2 || nodes[0].Comment.ID != "c" || nodes[1].Comment.ID != "d" {
		t.Fatalf("unexpected page 2: %d nodes", len(nodes))
	}
	if pg.Pages != 3 || !pg.HasNext || !pg.HasPrev {
		t.Fatalf("unexpected pagination: %+v", pg)
	}

	nodes, pg = BuildForest(in, ThreadOptions{Page: 9, PageSize: 2})
	if len(nodes) != 0 {
		t.Fatalf("past-the-end page must be empty, got %d", len(nodes))
	}
	if pg.HasNext {
		t.Fatal("past-the-end page must not report a next page")
	}
}

func TestBuildForest_Empty(t *testing.T) {
	nodes, pg := BuildForest(nil, ThreadOptions{})
	if len(nodes) != 0 {
		t.Fatalf("expected no nodes, got %d", len(nodes))
	}
	if pg.Total != 0 || pg.Pages != 0 || pg.HasNext || pg.HasPrev {
		t.Fatalf("unexpected pagination for empty thread: %+v", pg)
	}
}

func TestBuildForest_HiddenParentAnchorsChildren(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := "r"
	hidden := flatComment("r", nil, t0)
	hidden.IsHidden = true
	hidden.HiddenCause = CauseSelfDelete
	in := []Comment{hidden, flatComment("c", &r, t0.Add(time.Minute))}

	nodes, _ := BuildForest(in, ThreadOptions{})
	if len(nodes) != 1 || !nodes[0].Comment.IsHidden {
		t.Fatal("hidden root must stay in the forest")
	}
	if len(nodes[0].Replies) != 1 || nodes[0].Replies[0].Comment.IsHidden {
		t.Fatal("visible child must surface under its hidden parent")
	}
}
