package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newIntegrationStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	db := openTestDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	t.Cleanup(cancel)
	if err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func TestPostgresStoreLayoutLifecycle(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	postID, err := s.InsertPost(ctx, Post{Title: "Home", Slug: "home", Type: "page", Status: StatusPublish})
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}

	raw, err := s.LoadLayout(ctx, postID)
	if err != nil {
		t.Fatalf("load empty layout: %v", err)
	}
	if raw != "" {
		t.Fatalf("expected empty layout, got %q", raw)
	}

	if err := s.SetMeta(ctx, postID, MetaCSS, "body{}"); err != nil {
		t.Fatalf("seed css meta: %v", err)
	}

	layout := `[{"id":"hero","elType":"widget","elements":[]}]`
	if err := s.SaveLayout(ctx, postID, layout, LayoutWrite{BuilderMode: true}); err != nil {
		t.Fatalf("save layout: %v", err)
	}

	raw, err = s.LoadLayout(ctx, postID)
	if err != nil {
		t.Fatalf("load layout: %v", err)
	}
	if raw != layout {
		t.Fatalf("expected %q, got %q", layout, raw)
	}

	mode, ok, err := s.GetMeta(ctx, postID, MetaEditMode)
	if err != nil || !ok || mode != EditModeBuilder {
		t.Fatalf("expected builder edit mode, got %q ok=%v err=%v", mode, ok, err)
	}
	if _, ok, _ := s.GetMeta(ctx, postID, MetaCSS); ok {
		t.Fatal("expected css meta to be cleared")
	}
}

func TestPostgresStoreGetPostNotFound(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	_, err := s.GetPost(ctx, 987654)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestPostgresStoreListTemplates(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	seed := []struct {
		title  string
		status string
		typ    string
	}{
		{title: "Footer", status: StatusPublish, typ: "footer"},
		{title: "Alpha Header", status: StatusPublish, typ: "header"},
		{title: "Draft Header", status: "draft", typ: "header"},
		{title: "Bare", status: StatusPublish},
	}
	for _, item := range seed {
		id, err := s.InsertPost(ctx, Post{Title: item.title, Type: PostTypeTemplate, Status: item.status})
		if err != nil {
			t.Fatalf("insert template: %v", err)
		}
		if item.typ != "" {
			if err := s.SetMeta(ctx, id, MetaTemplateType, item.typ); err != nil {
				t.Fatalf("set template type: %v", err)
			}
		}
	}

	all, err := s.ListTemplates(ctx, TemplateTypeAll)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 published templates, got %d", len(all))
	}
	if all[0].Title != "Alpha Header" || all[1].Title != "Bare" || all[2].Title != "Footer" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if all[1].Type != "unknown" {
		t.Fatalf("expected unknown type for untyped template, got %q", all[1].Type)
	}

	headers, err := s.ListTemplates(ctx, "header")
	if err != nil {
		t.Fatalf("list headers: %v", err)
	}
	if len(headers) != 1 || headers[0].Title != "Alpha Header" {
		t.Fatalf("unexpected headers: %+v", headers)
	}
}

func TestPostgresStoreDeleteMetaByKey(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	for _, title := range []string{"One", "Two"} {
		id, err := s.InsertPost(ctx, Post{Title: title, Type: "page", Status: StatusPublish})
		if err != nil {
			t.Fatalf("insert post: %v", err)
		}
		if err := s.SetMeta(ctx, id, MetaCSS, "css"); err != nil {
			t.Fatalf("seed css: %v", err)
		}
	}

	deleted, err := s.DeleteMetaByKey(ctx, MetaCSS)
	if err != nil {
		t.Fatalf("delete by key: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", deleted)
	}
}

func TestPostgresStoreOptions(t *testing.T) {
	s, ctx := newIntegrationStore(t)

	if _, ok, err := s.GetOption(ctx, OptionActiveKit); err != nil || ok {
		t.Fatalf("expected missing option, ok=%v err=%v", ok, err)
	}
	if err := s.SetOption(ctx, OptionActiveKit, "42"); err != nil {
		t.Fatalf("set option: %v", err)
	}
	value, ok, err := s.GetOption(ctx, OptionActiveKit)
	if err != nil || !ok || value != "42" {
		t.Fatalf("expected 42, got %q ok=%v err=%v", value, ok, err)
	}
}
