// Package search answers template listings from Meilisearch when it is
// reachable and from PostgreSQL otherwise.
package search

import (
	"context"
	"time"

	"pagekit/api/internal/store"
)

// Source is the authoritative template listing.
type Source interface {
	ListTemplates(ctx context.Context, typeFilter string) ([]store.Template, error)
}

// TemplateRecord is the data we index for a template.
type TemplateRecord struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Type       string    `json:"type"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

func recordFromTemplate(t store.Template) TemplateRecord {
	return TemplateRecord{
		ID:         t.ID,
		Title:      t.Title,
		Type:       t.Type,
		CreatedAt:  t.CreatedAt,
		ModifiedAt: t.ModifiedAt,
	}
}

func (r TemplateRecord) template() store.Template {
	return store.Template{
		ID:         r.ID,
		Title:      r.Title,
		Type:       r.Type,
		CreatedAt:  r.CreatedAt,
		ModifiedAt: r.ModifiedAt,
	}
}
