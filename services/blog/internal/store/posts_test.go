package store

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// ─── Derived fields ─────────────────────────────────────────────────────────

func TestSlugify(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello World", "hello-world"},
		{"  Go 1.24 — what's new?  ", "go-1-24-what-s-new"},
		{"---", ""},
		{"ALL CAPS", "all-caps"},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMakeExcerpt(t *testing.T) {
	short := "just a short post"
	if got := MakeExcerpt(short); got != short {
		t.Fatalf("short content must pass through, got %q", got)
	}
	long := strings.Repeat("x", 300)
	got := MakeExcerpt(long)
	if len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected 200 chars plus ellipsis, got %d chars", len(got))
	}
}

func TestReadingTime(t *testing.T) {
	if got := ReadingTime(""); got != 0 {
		t.Fatalf("empty content: expected 0, got %d", got)
	}
	if got := ReadingTime("one two three"); got != 1 {
		t.Fatalf("short content rounds up to 1, got %d", got)
	}
	if got := ReadingTime(strings.Repeat("word ", 450)); got != 3 {
		t.Fatalf("450 words: expected 3 minutes, got %d", got)
	}
}

// ─── Lifecycle ──────────────────────────────────────────────────────────────

func TestPostCreate_Defaults(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()

	p, err := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "My First Post", Content: strings.Repeat("word ", 300)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != PostDraft {
		t.Fatalf("expected draft, got %s", p.Status)
	}
	if p.Slug != "my-first-post" {
		t.Fatalf("unexpected slug %q", p.Slug)
	}
	if p.Excerpt == "" || p.ReadingTime != 2 {
		t.Fatalf("expected derived excerpt and reading time, got %q / %d", p.Excerpt, p.ReadingTime)
	}
	if p.PublishedAt != nil {
		t.Fatal("draft must not carry published_at")
	}
}

func TestPostCreate_SlugCollision(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()

	p1, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Same Title", Content: "x"})
	p2, err := posts.Create(ctx, CreatePost{AuthorID: "a2", Title: "Same Title", Content: "y"})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if p1.Slug == p2.Slug {
		t.Fatalf("colliding titles must get distinct slugs, both %q", p1.Slug)
	}
	if !strings.HasPrefix(p2.Slug, "same-title-") {
		t.Fatalf("expected suffixed slug, got %q", p2.Slug)
	}
}

func TestPostPublish_AuthorOnly(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "T", Content: "x"})

	if _, err := posts.Publish(ctx, p.ID, Actor{UserID: "someone", Role: "user"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	got, err := posts.Publish(ctx, p.ID, Actor{UserID: "a1", Role: "user"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got.Status != PostPublished || got.PublishedAt == nil {
		t.Fatalf("unexpected publish state: %+v", got)
	}

	// Republishing after archive keeps the original timestamp.
	first := *got.PublishedAt
	if _, err := posts.Archive(ctx, p.ID, Actor{UserID: "a1"}); err != nil {
		t.Fatalf("archive: %v", err)
	}
	got, err = posts.Publish(ctx, p.ID, Actor{UserID: "a1"})
	if err != nil {
		t.Fatalf("republish: %v", err)
	}
	if !got.PublishedAt.Equal(first) {
		t.Fatal("republish must keep the first published_at")
	}
}

func TestPostPublish_AdminOverride(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "T", Content: "x"})

	if _, err := posts.Publish(ctx, p.ID, Actor{UserID: "admin-1", Role: "admin"}); err != nil {
		t.Fatalf("admin publish: %v", err)
	}
}

func TestPostSoftDelete_HidesFromReads(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "T", Content: "x"})
	_, _ = posts.Publish(ctx, p.ID, Actor{UserID: "a1"})

	if err := posts.SoftDelete(ctx, p.ID, Actor{UserID: "a1"}); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if _, err := posts.GetByID(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := posts.GetBySlug(ctx, p.Slug); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound by slug after delete, got %v", err)
	}
}

func TestListPublished_FiltersAndPages(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Post " + string(rune('A'+i)), Content: "x"})
		_, _ = posts.Publish(ctx, p.ID, Actor{UserID: "a1"})
	}
	_, _ = posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Still Draft", Content: "x"})

	out, pg, err := posts.ListPublished(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 || pg.Total != 3 || pg.Pages != 2 {
		t.Fatalf("unexpected page: %d items, %+v", len(out), pg)
	}
	for _, p := range out {
		if p.Status != PostPublished {
			t.Fatalf("draft leaked into published list: %+v", p)
		}
	}
}

// ─── Edits ──────────────────────────────────────────────────────────────────

func TestPostUpdate_RederivesSlugAndReadingTime(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Old Title", Content: "short"})

	got, err := posts.Update(ctx, p.ID, Actor{UserID: "a1", Role: "user"}, UpdatePost{
		Title:   "Brand New Title",
		Content: strings.Repeat("word ", 300),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Slug != "brand-new-title" {
		t.Fatalf("title change must re-derive the slug, got %q", got.Slug)
	}
	if got.ReadingTime != 2 {
		t.Fatalf("content change must re-derive reading time, got %d", got.ReadingTime)
	}
	if got.UpdatedAt == nil {
		t.Fatal("expected updated_at to be set")
	}

	// The old slug is released, the new one resolves.
	if _, err := posts.GetBySlug(ctx, "old-title"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old slug must be released, got %v", err)
	}
	bySlug, err := posts.GetBySlug(ctx, "brand-new-title")
	if err != nil || bySlug.ID != p.ID {
		t.Fatalf("new slug must resolve to the post, got %v / %v", bySlug.ID, err)
	}
}

func TestPostUpdate_PartialFields(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Keep Me", Content: "original", Excerpt: "custom"})

	got, err := posts.Update(ctx, p.ID, Actor{UserID: "a1"}, UpdatePost{Excerpt: "new excerpt"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "Keep Me" || got.Slug != p.Slug || got.Content != "original" {
		t.Fatalf("untouched fields must survive, got %+v", got)
	}
	if got.Excerpt != "new excerpt" {
		t.Fatalf("expected excerpt replaced, got %q", got.Excerpt)
	}
}

func TestPostUpdate_AuthorGate(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "T", Content: "x"})

	if _, err := posts.Update(ctx, p.ID, Actor{UserID: "stranger", Role: "user"}, UpdatePost{Title: "Hijack"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := posts.Update(ctx, p.ID, Actor{UserID: "admin-1", Role: "admin"}, UpdatePost{Title: "Admin Edit"}); err != nil {
		t.Fatalf("admin update: %v", err)
	}
	if _, err := posts.Update(ctx, "missing", Actor{UserID: "a1"}, UpdatePost{Title: "X"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostUpdate_SlugCollisionGetsSuffix(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	_, _ = posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Taken Title", Content: "x"})
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Other", Content: "x"})

	got, err := posts.Update(ctx, p.ID, Actor{UserID: "a1"}, UpdatePost{Title: "Taken Title"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Slug == "taken-title" || !strings.HasPrefix(got.Slug, "taken-title-") {
		t.Fatalf("expected suffixed slug, got %q", got.Slug)
	}
}

func TestListByAuthor_UnpublishedFilter(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()

	published, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Public One", Content: "x"})
	_, _ = posts.Publish(ctx, published.ID, Actor{UserID: "a1"})
	_, _ = posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "Draft One", Content: "x"})
	other, _ := posts.Create(ctx, CreatePost{AuthorID: "a2", Title: "Not Mine", Content: "x"})
	_, _ = posts.Publish(ctx, other.ID, Actor{UserID: "a2"})

	// Public view: published only, never another author's posts.
	out, pg, err := posts.ListByAuthor(ctx, "a1", false, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 1 || out[0].ID != published.ID || pg.Total != 1 {
		t.Fatalf("public view must show only published posts, got %d items", len(out))
	}

	// Owner view: drafts included.
	out, pg, err = posts.ListByAuthor(ctx, "a1", true, 1, 10)
	if err != nil {
		t.Fatalf("owner list: %v", err)
	}
	if len(out) != 2 || pg.Total != 2 {
		t.Fatalf("owner view must include drafts, got %d items", len(out))
	}
}

// ─── Likes and views ────────────────────────────────────────────────────────

func TestPostToggleLike(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "T", Content: "x"})
	_, _ = posts.Publish(ctx, p.ID, Actor{UserID: "a1"})

	res, err := posts.ToggleLike(ctx, p.ID, "u1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !res.Liked || res.LikesCount != 1 {
		t.Fatalf("expected liked count 1, got %+v", res)
	}
	res, _ = posts.ToggleLike(ctx, p.ID, "u2")
	if res.LikesCount != 2 {
		t.Fatalf("expected count 2, got %d", res.LikesCount)
	}
	res, _ = posts.ToggleLike(ctx, p.ID, "u1")
	if res.Liked || res.LikesCount != 1 {
		t.Fatalf("expected unlike back to 1, got %+v", res)
	}
}

func TestAddViews(t *testing.T) {
	posts := NewInMemoryPostStore()
	ctx := context.Background()
	p, _ := posts.Create(ctx, CreatePost{AuthorID: "a1", Title: "T", Content: "x"})
	_, _ = posts.Publish(ctx, p.ID, Actor{UserID: "a1"})

	if err := posts.AddViews(ctx, p.ID, 7); err != nil {
		t.Fatalf("add views: %v", err)
	}
	if err := posts.AddViews(ctx, p.ID, 0); err != nil {
		t.Fatalf("zero delta must be a no-op, got %v", err)
	}
	got, _ := posts.GetByID(ctx, p.ID)
	if got.Views != 7 {
		t.Fatalf("expected 7 views, got %d", got.Views)
	}
	if err := posts.AddViews(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostStoreInterface(t *testing.T) {
	var _ PostStore = (*InMemoryPostStore)(nil)
	var _ PostStore = (*PostgresPostStore)(nil)
}
