package search

import (
	"context"
	"time"

	"pagekit/api/internal/logging"
	"pagekit/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to the
// store.
type Service struct {
	meili        *Meili
	source       Source
	syncInterval time.Duration
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, source Source) *Service {
	return &Service{meili: meili, source: source, syncInterval: healthInterval}
}

func (s *Service) ListTemplates(ctx context.Context, typeFilter string) ([]store.Template, error) {
	if s.meili != nil && s.meili.Healthy() {
		templates, err := s.meili.ListTemplates(typeFilter)
		if err == nil {
			return templates, nil
		}
		logging.FromContext(ctx).Warn().Err(err).Msg("meilisearch error, falling back to store")
	}
	return s.source.ListTemplates(ctx, typeFilter)
}

// ReindexTemplates reads all published templates from the store and makes
// the Meilisearch index match them, dropping templates that are gone.
func (s *Service) ReindexTemplates(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	log := logging.FromContext(ctx)
	templates, err := s.source.ListTemplates(ctx, store.TemplateTypeAll)
	if err != nil {
		log.Warn().Err(err).Msg("template reindex load failed")
		return
	}
	records := make([]TemplateRecord, 0, len(templates))
	for _, t := range templates {
		records = append(records, recordFromTemplate(t))
	}
	removed, err := s.meili.SyncTemplates(records)
	if err != nil {
		log.Warn().Err(err).Msg("template reindex failed")
		return
	}
	log.Debug().Int("templates", len(records)).Int("removed", removed).Msg("templates reindexed")
}

// RefreshTemplates reindexes in the background after a template was written.
func (s *Service) RefreshTemplates(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go s.ReindexTemplates(context.WithoutCancel(ctx))
}

// Run resyncs the template index until ctx is done, picking up templates
// written to the store by other clients.
func (s *Service) Run(ctx context.Context) {
	if s.meili == nil {
		return
	}
	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.ReindexTemplates(ctx)
		}
	}
}
