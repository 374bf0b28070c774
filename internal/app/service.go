package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wI2L/jsondiff"

	"pagekit/api/internal/cache"
	"pagekit/api/internal/config"
	"pagekit/api/internal/logging"
	"pagekit/api/internal/rbac"
	"pagekit/api/internal/search"
	"pagekit/api/internal/store"
	"pagekit/api/internal/textpatch"
)

type dataStore interface {
	GetPost(context.Context, int64) (store.Post, error)
	GetMeta(context.Context, int64, string) (string, bool, error)
	LoadLayout(context.Context, int64) (string, error)
	SaveLayout(context.Context, int64, string, store.LayoutWrite) error
	SavePageSettings(context.Context, int64, string) error
	DeleteMeta(context.Context, int64, string) error
	DeleteMetaByKey(context.Context, string) (int64, error)
	GetOption(context.Context, string) (string, bool, error)
	Ping(context.Context) error
}

type templateCatalog interface {
	ListTemplates(context.Context, string) ([]store.Template, error)
	ReindexTemplates(context.Context)
	RefreshTemplates(context.Context)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	templates templateCatalog
	cache     cache.Invalidator
	patcher   textpatch.Patcher
	abilities *Registry
}

func New(cfg config.Config, dataStore *store.PostgresStore, templates *search.Service, invalidator cache.Invalidator) *Service {
	return newService(cfg, dataStore, templates, invalidator)
}

func newService(cfg config.Config, dataStore dataStore, templates templateCatalog, invalidator cache.Invalidator) *Service {
	if invalidator == nil {
		invalidator = cache.Noop{}
	}
	s := &Service{
		cfg:       cfg,
		store:     dataStore,
		templates: templates,
		cache:     invalidator,
		patcher:   textpatch.Patcher{MatchTimeout: cfg.PatternTimeout},
		abilities: NewRegistry(),
	}
	s.registerElementorAbilities()
	return s
}

// ListAbilities describes the registry without connecting any backend.
func ListAbilities(cfg config.Config) []AbilityInfo {
	return newService(cfg, nil, nil, cache.Noop{}).Abilities()
}

// Bootstrap mirrors published templates into the search index.
func (s *Service) Bootstrap(ctx context.Context) {
	s.templates.ReindexTemplates(ctx)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingCache checks the cache backend. A service without one reports
// configured=false.
func (s *Service) PingCache(ctx context.Context) (configured bool, err error) {
	pinger, ok := s.cache.(interface{ Ping(context.Context) error })
	if !ok {
		return false, nil
	}
	return true, pinger.Ping(ctx)
}

func (s *Service) Ability(name string) (*Ability, bool) {
	return s.abilities.Lookup(name)
}

func (s *Service) Abilities() []AbilityInfo {
	list := s.abilities.List()
	out := make([]AbilityInfo, 0, len(list))
	for _, ability := range list {
		out = append(out, ability.Info())
	}
	return out
}

// Execute runs an ability and always returns an envelope. Failures of any
// kind come back as success=false with a message and an error code.
func (s *Service) Execute(ctx context.Context, name string, caller Caller, input json.RawMessage) Result {
	started := time.Now()
	log := logging.FromContext(ctx).With().Str("ability", name).Str("user_id", caller.UserID).Logger()

	ability, ok := s.abilities.Lookup(name)
	if !ok {
		return failure(domainError(CodeUnknownAbility, fmt.Sprintf("Ability %q is not registered", name), nil))
	}
	if !rbac.Can(caller.Role, ability.Capability) {
		log.Warn().Str("role", string(caller.Role)).Msg("ability denied")
		return failure(domainError(CodeForbidden, "Sorry, you are not allowed to run this ability", nil))
	}

	call := Call{Input: input, Caller: caller, Site: s.site(ctx)}
	result, err := ability.Execute(ctx, call)
	if err != nil {
		var domainErr *DomainError
		if !errors.As(err, &domainErr) {
			log.Error().Err(err).Msg("ability failed")
			domainErr = domainError(CodeStore, "Internal error", nil)
		}
		log.Info().
			Str("code", domainErr.Code).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("ability rejected")
		return failure(domainErr)
	}

	result["success"] = true
	log.Info().Int64("duration_ms", time.Since(started).Milliseconds()).Msg("ability executed")
	return result
}

func failure(err *DomainError) Result {
	result := Result{}
	for key, value := range err.Details {
		result[key] = value
	}
	result["success"] = false
	result["message"] = err.Message
	result["code"] = err.Code
	return result
}

// site loads per-request site state. A broken option only disables kit
// detection.
func (s *Service) site(ctx context.Context) Site {
	site := Site{URL: s.cfg.SiteURL}
	value, ok, err := s.store.GetOption(ctx, store.OptionActiveKit)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("load active kit option")
		return site
	}
	if ok {
		site.ActiveKitID, _ = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	}
	return site
}

// loadPost maps a missing post to NOT_FOUND and any other failure to
// STORE_ERROR.
func (s *Service) loadPost(ctx context.Context, postID int64) (store.Post, error) {
	post, err := s.store.GetPost(ctx, postID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Post{}, domainError(CodeNotFound, "Post not found", nil)
	}
	if err != nil {
		return store.Post{}, s.storeError(ctx, "load post", err)
	}
	return post, nil
}

func (s *Service) storeError(ctx context.Context, op string, err error) *DomainError {
	logging.FromContext(ctx).Error().Err(err).Str("op", op).Msg("store failure")
	return domainError(CodeStore, "Failed to "+op, nil)
}

// saveLayout persists a new layout and drops the cached stylesheet.
func (s *Service) saveLayout(ctx context.Context, post store.Post, raw string, opts store.LayoutWrite) error {
	if err := s.store.SaveLayout(ctx, post.ID, raw, opts); err != nil {
		return s.storeError(ctx, "save layout", err)
	}
	s.cache.Invalidate(ctx, post.ID)
	if post.Type == store.PostTypeTemplate {
		s.templates.RefreshTemplates(ctx)
	}
	return nil
}

func permalink(site Site, post store.Post) string {
	if post.Slug != "" {
		return fmt.Sprintf("%s/%s/", site.URL, post.Slug)
	}
	return fmt.Sprintf("%s/?p=%d", site.URL, post.ID)
}

// countChanges is the number of JSON Patch operations turning before into
// after. Unparsable input counts as null.
func countChanges(ctx context.Context, before, after string) int {
	source := []byte(before)
	if !json.Valid(source) {
		source = []byte("null")
	}
	patch, err := jsondiff.CompareJSON(source, []byte(after))
	if err != nil {
		logging.FromContext(ctx).Debug().Err(err).Msg("layout diff failed")
		return 0
	}
	return len(patch)
}

// decodeInput strictly decodes an ability input object.
func decodeInput(raw json.RawMessage, target any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return validationError("Invalid input: " + err.Error())
	}
	if decoder.More() {
		return validationError("Invalid input: trailing data")
	}
	return nil
}
