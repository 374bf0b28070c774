package search

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"

	"pagekit/api/internal/store"
)

const (
	idxTemplates      = "pagekit_templates"
	templateListLimit = 100
	syncPageSize      = 1000
	healthInterval    = 10 * time.Second
)

// Meili keeps a mirror of published templates in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the template index.
// An unreachable server is not an error: the health loop keeps probing.
func NewMeili(url, apiKey string, logger zerolog.Logger) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger.With().Str("component", "search").Logger(),
		done:   make(chan struct{}),
	}

	if _, err := m.client.Health(); err != nil {
		m.logger.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxTemplates,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug().Err(err).Msg("create template index (may already exist)")
	}

	index := m.client.Index(idxTemplates)
	filterable := []interface{}{"type"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn().Err(err).Msg("update filterable attributes")
	}
	sortable := []string{"title", "id"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.logger.Warn().Err(err).Msg("update sortable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// ListTemplates returns indexed templates ordered by title, optionally
// restricted to one template type.
func (m *Meili) ListTemplates(typeFilter string) ([]store.Template, error) {
	if !m.healthy.Load() {
		return nil, fmt.Errorf("meilisearch unhealthy")
	}

	req := &meili.SearchRequest{
		IndexUID: idxTemplates,
		Limit:    templateListLimit,
		Sort:     []string{"title:asc", "id:asc"},
	}
	if typeFilter != "" && typeFilter != store.TemplateTypeAll {
		req.Filter = []string{fmt.Sprintf("type = %s", strconv.Quote(typeFilter))}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{req},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch template search: %w", err)
	}

	templates := []store.Template{}
	for _, sr := range resp.Results {
		for _, hit := range sr.Hits {
			record, err := decodeTemplate(hit)
			if err != nil {
				return nil, err
			}
			templates = append(templates, record.template())
		}
	}
	return templates, nil
}

func decodeTemplate(hit meili.Hit) (TemplateRecord, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("encode hit: %w", err)
	}
	var record TemplateRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return TemplateRecord{}, fmt.Errorf("decode template hit: %w", err)
	}
	return record, nil
}

// SyncTemplates makes the index hold exactly records: they are upserted and
// every other indexed id is deleted. It returns the number of deletions.
func (m *Meili) SyncTemplates(records []TemplateRecord) (int, error) {
	indexed, err := m.indexedTemplateIDs()
	if err != nil {
		return 0, err
	}
	if err := m.IndexTemplates(records); err != nil {
		return 0, fmt.Errorf("index templates: %w", err)
	}

	keep := make(map[int64]struct{}, len(records))
	for _, record := range records {
		keep[record.ID] = struct{}{}
	}
	removed := 0
	for _, id := range indexed {
		if _, ok := keep[id]; ok {
			continue
		}
		if _, err := m.client.Index(idxTemplates).DeleteDocument(strconv.FormatInt(id, 10), nil); err != nil {
			return removed, fmt.Errorf("delete template %d: %w", id, err)
		}
		removed++
	}
	return removed, nil
}

func (m *Meili) indexedTemplateIDs() ([]int64, error) {
	var ids []int64
	for offset := int64(0); ; offset += syncPageSize {
		resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
			Queries: []*meili.SearchRequest{{
				IndexUID:             idxTemplates,
				Limit:                syncPageSize,
				Offset:               offset,
				AttributesToRetrieve: []string{"id"},
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("list indexed templates: %w", err)
		}
		page := 0
		for _, sr := range resp.Results {
			for _, hit := range sr.Hits {
				record, err := decodeTemplate(hit)
				if err != nil {
					return nil, err
				}
				ids = append(ids, record.ID)
				page++
			}
		}
		if page < syncPageSize {
			return ids, nil
		}
	}
}

// IndexTemplates bulk-indexes template records.
func (m *Meili) IndexTemplates(records []TemplateRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTemplates).AddDocuments(records, nil)
	return err
}
