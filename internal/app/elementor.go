package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/tidwall/gjson"

	"pagekit/api/internal/element"
	"pagekit/api/internal/rbac"
	"pagekit/api/internal/store"
	"pagekit/api/internal/textpatch"
)

const timestampLayout = "2006-01-02 15:04:05"

var templateTypes = []string{
	store.TemplateTypeAll, "page", "section", "container", "loop-item",
	"header", "footer", "single", "archive", "popup",
}

func (s *Service) registerElementorAbilities() {
	abilities := []*Ability{
		{
			Name:        "elementor/get-data",
			Label:       "Get Elementor Data",
			Description: "Retrieves the Elementor JSON data for a page or post, with its edit mode and page settings.",
			InputSchema: json.RawMessage(`{"type":"object","required":["id"],"additionalProperties":false,"properties":{` +
				`"id":{"type":"integer","description":"Post/Page ID to get Elementor data from."},` +
				`"format":{"type":"string","enum":["array","json"],"default":"array","description":"\"array\" for parsed data, \"json\" for the raw JSON string."}}}`),
			Annotations: Annotations{Readonly: true, Idempotent: true},
			Execute:     s.getData,
		},
		{
			Name:        "elementor/update-data",
			Label:       "Update Elementor Data",
			Description: "Replaces the Elementor JSON data for a page or post and clears its CSS cache.",
			InputSchema: json.RawMessage(`{"type":"object","required":["id","data"],"additionalProperties":false,"properties":{` +
				`"id":{"type":"integer","description":"Post/Page ID to update."},` +
				`"data":{"type":["array","object"],"description":"Elementor data (will be JSON encoded)."}}}`),
			Annotations: Annotations{Idempotent: true},
			Execute:     s.updateData,
		},
		{
			Name:        "elementor/patch-data",
			Label:       "Patch Elementor Data",
			Description: "Find and replace within the raw Elementor JSON. The result must still be valid JSON or nothing is written.",
			InputSchema: json.RawMessage(`{"type":"object","required":["id","find","replace"],"additionalProperties":false,"properties":{` +
				`"id":{"type":"integer","description":"Post/Page ID to patch."},` +
				`"find":{"type":"string","description":"String or pattern to find in the Elementor JSON."},` +
				`"replace":{"type":"string","description":"Replacement string. Patterns may reference groups as $1, ${1} or \\1."},` +
				`"use_pattern":{"type":"boolean","default":false,"description":"Treat find as a regular expression."},` +
				`"regex":{"type":"boolean","default":false,"description":"Alias of use_pattern."}}}`),
			Annotations: Annotations{Idempotent: true},
			Execute:     s.patchData,
		},
		{
			Name:        "elementor/update-element",
			Label:       "Update Elementor Element",
			Description: "Replaces one element (container or widget) by id within the Elementor page structure.",
			InputSchema: json.RawMessage(`{"type":"object","required":["id","target_id","replacement"],"additionalProperties":false,"properties":{` +
				`"id":{"type":"integer","description":"Post/Page ID containing the element."},` +
				`"target_id":{"type":"string","description":"The id of the element to replace."},` +
				`"replacement":{"type":"object","description":"The new element. Must include id, elType and the other required fields."},` +
				`"element_id":{"type":"string","description":"Alias of target_id."},` +
				`"element_data":{"type":"object","description":"Alias of replacement."}}}`),
			Annotations: Annotations{Idempotent: true},
			Execute:     s.updateElement,
		},
		{
			Name:        "elementor/list-templates",
			Label:       "List Elementor Templates",
			Description: "Lists saved Elementor templates ordered by title.",
			InputSchema: json.RawMessage(`{"type":"object","additionalProperties":false,"properties":{` +
				`"type_filter":{"type":"string","enum":["all","page","section","container","loop-item","header","footer","single","archive","popup"],"default":"all","description":"Filter by template type."},` +
				`"type":{"type":"string","description":"Alias of type_filter."}}}`),
			Annotations: Annotations{Readonly: true, Idempotent: true},
			Execute:     s.listTemplates,
		},
		{
			Name:        "elementor/clear-cache",
			Label:       "Clear Elementor Cache",
			Description: "Clears generated Elementor CSS for one post or for the entire site.",
			InputSchema: json.RawMessage(`{"type":"object","additionalProperties":false,"properties":{` +
				`"id":{"type":"integer","description":"Post/Page ID to clear cache for."},` +
				`"all":{"type":"boolean","default":false,"description":"Clear all Elementor cache site-wide."}}}`),
			Annotations: Annotations{Idempotent: true},
			Execute:     s.clearCache,
		},
		{
			Name:        "elementor/update-settings",
			Label:       "Update Elementor Page Settings",
			Description: "Merges or replaces the Elementor page settings of a post or of the site kit.",
			InputSchema: json.RawMessage(`{"type":"object","required":["id"],"additionalProperties":false,"properties":{` +
				`"id":{"type":"integer","description":"Post/Page/Kit ID to update settings for."},` +
				`"settings":{"type":"object","description":"Settings merged into the existing ones."},` +
				`"replace":{"type":"boolean","default":false,"description":"Replace the whole settings object instead of merging."}}}`),
			Annotations: Annotations{Idempotent: true},
			Execute:     s.updateSettings,
		},
	}
	for _, ability := range abilities {
		ability.Capability = rbac.CapEditPosts
		if err := s.abilities.Register(ability); err != nil {
			panic(err)
		}
	}
}

type getDataInput struct {
	ID     int64  `json:"id"`
	Format string `json:"format"`
}

func (s *Service) getData(ctx context.Context, call Call) (Result, error) {
	var in getDataInput
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, err
	}
	if in.ID == 0 {
		return nil, validationError("Post/Page ID is required")
	}
	if in.Format != "" && in.Format != "array" && in.Format != "json" {
		return nil, validationError(`Format must be "array" or "json"`)
	}

	post, err := s.loadPost(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.LoadLayout(ctx, post.ID)
	if err != nil {
		return nil, s.storeError(ctx, "load layout", err)
	}
	if raw == "" {
		return nil, domainError(CodeNotFound, "No Elementor data found for this post", map[string]any{
			"id":    post.ID,
			"title": post.Title,
		})
	}
	editMode, _, err := s.store.GetMeta(ctx, post.ID, store.MetaEditMode)
	if err != nil {
		return nil, s.storeError(ctx, "load edit mode", err)
	}
	if editMode == "" {
		editMode = "not set"
	}
	settings, _, err := s.store.GetMeta(ctx, post.ID, store.MetaPageSettings)
	if err != nil {
		return nil, s.storeError(ctx, "load page settings", err)
	}

	var data any = json.RawMessage("null")
	switch {
	case in.Format == "json":
		data = raw
	case gjson.Valid(raw):
		data = json.RawMessage(raw)
	}

	return Result{
		"id":            post.ID,
		"title":         post.Title,
		"edit_mode":     editMode,
		"data":          data,
		"page_settings": jsonObjectOrEmpty(settings),
		"message":       "Elementor data retrieved successfully",
	}, nil
}

type updateDataInput struct {
	ID   int64           `json:"id"`
	Data json.RawMessage `json:"data"`
}

func (s *Service) updateData(ctx context.Context, call Call) (Result, error) {
	var in updateDataInput
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, err
	}
	if in.ID == 0 {
		return nil, validationError("Post/Page ID is required")
	}
	if kind := gjson.ParseBytes(in.Data); len(in.Data) == 0 || !(kind.IsArray() || kind.IsObject()) {
		return nil, validationError("Elementor data array is required")
	}

	post, err := s.loadPost(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	var encoded bytes.Buffer
	if err := json.Compact(&encoded, in.Data); err != nil {
		return nil, domainError(CodeEncoding, "Failed to encode data to JSON", nil)
	}
	previous, err := s.store.LoadLayout(ctx, post.ID)
	if err != nil {
		return nil, s.storeError(ctx, "load layout", err)
	}
	if err := s.saveLayout(ctx, post, encoded.String(), store.LayoutWrite{BuilderMode: true}); err != nil {
		return nil, err
	}

	return Result{
		"id":      post.ID,
		"link":    permalink(call.Site, post),
		"changes": countChanges(ctx, previous, encoded.String()),
		"message": "Elementor data updated successfully",
	}, nil
}

type patchDataInput struct {
	ID         int64   `json:"id"`
	Find       *string `json:"find"`
	Replace    *string `json:"replace"`
	UsePattern bool    `json:"use_pattern"`
	Regex      bool    `json:"regex"`
}

func (s *Service) patchData(ctx context.Context, call Call) (Result, error) {
	var in patchDataInput
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, err
	}
	if in.ID == 0 {
		return nil, validationError("Post/Page ID is required")
	}
	if in.Find == nil || *in.Find == "" {
		return nil, validationError("Find string is required")
	}
	if in.Replace == nil {
		return nil, validationError("Replace string is required")
	}

	post, err := s.loadPost(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.LoadLayout(ctx, post.ID)
	if err != nil {
		return nil, s.storeError(ctx, "load layout", err)
	}
	if raw == "" {
		return nil, domainError(CodeNotFound, "No Elementor data found for this post", nil)
	}

	result, err := s.patcher.Apply(raw, *in.Find, *in.Replace, in.UsePattern || in.Regex)
	switch {
	case errors.Is(err, textpatch.ErrInvalidPattern):
		return nil, domainError(CodePattern, "Invalid regex pattern", map[string]any{"detail": err.Error()})
	case errors.Is(err, textpatch.ErrPatternTimeout):
		return nil, domainError(CodePattern, "Pattern took too long to match", nil)
	case errors.Is(err, textpatch.ErrInvalidResult):
		return nil, domainError(CodePostCondition, "Replacement would result in invalid JSON - aborted", nil)
	case errors.Is(err, textpatch.ErrEmptyFind):
		return nil, validationError("Find string is required")
	case err != nil:
		return nil, fmt.Errorf("patch layout: %w", err)
	}

	link := permalink(call.Site, post)
	if result.Count == 0 {
		return Result{
			"id":           post.ID,
			"replacements": 0,
			"changes":      0,
			"link":         link,
			"message":      "No matches found - Elementor data unchanged",
		}, nil
	}
	if err := s.saveLayout(ctx, post, result.Text, store.LayoutWrite{}); err != nil {
		return nil, err
	}

	return Result{
		"id":           post.ID,
		"replacements": result.Count,
		"changes":      countChanges(ctx, raw, result.Text),
		"link":         link,
		"message":      fmt.Sprintf("Successfully replaced %d occurrence(s) in Elementor data", result.Count),
	}, nil
}

type updateElementInput struct {
	ID          int64           `json:"id"`
	TargetID    string          `json:"target_id"`
	Replacement json.RawMessage `json:"replacement"`
	ElementID   string          `json:"element_id"`
	ElementData json.RawMessage `json:"element_data"`
}

func (s *Service) updateElement(ctx context.Context, call Call) (Result, error) {
	var in updateElementInput
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, err
	}
	targetID := firstNonEmpty(in.TargetID, in.ElementID)
	payload := in.Replacement
	if len(payload) == 0 {
		payload = in.ElementData
	}
	if in.ID == 0 {
		return nil, validationError("Post/Page ID is required")
	}
	if targetID == "" {
		return nil, validationError("Element ID is required")
	}
	replacement, err := element.ParseElement(payload)
	if err != nil {
		return nil, validationError("Element data object is required")
	}

	post, err := s.loadPost(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	raw, err := s.store.LoadLayout(ctx, post.ID)
	if err != nil {
		return nil, s.storeError(ctx, "load layout", err)
	}
	if raw == "" {
		return nil, domainError(CodeNotFound, "No Elementor data found for this post", nil)
	}
	doc, err := element.Parse([]byte(raw))
	if err != nil {
		return nil, domainError(CodeEncoding, "Failed to parse existing Elementor data", nil)
	}

	updated, found := element.ReplaceElement(doc, targetID, replacement)
	if !found {
		return nil, domainError(CodeNotFound, fmt.Sprintf("Element with ID %q not found in page structure", targetID), map[string]any{
			"id":        post.ID,
			"target_id": targetID,
		})
	}
	encoded := string(updated.Bytes())
	if !gjson.Valid(encoded) {
		return nil, domainError(CodeEncoding, "Failed to encode updated data to JSON", nil)
	}
	if err := s.saveLayout(ctx, post, encoded, store.LayoutWrite{}); err != nil {
		return nil, err
	}

	return Result{
		"id":        post.ID,
		"target_id": targetID,
		"link":      permalink(call.Site, post),
		"changes":   countChanges(ctx, raw, encoded),
		"message":   fmt.Sprintf("Element %q updated successfully", targetID),
	}, nil
}

type listTemplatesInput struct {
	TypeFilter string `json:"type_filter"`
	Type       string `json:"type"`
}

type templateSummary struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Type       string `json:"type"`
	CreatedAt  string `json:"created_at"`
	ModifiedAt string `json:"modified_at"`
}

func (s *Service) listTemplates(ctx context.Context, call Call) (Result, error) {
	var in listTemplatesInput
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, err
	}
	typeFilter := firstNonEmpty(in.TypeFilter, in.Type, store.TemplateTypeAll)
	if !slices.Contains(templateTypes, typeFilter) {
		return nil, validationError(fmt.Sprintf("Invalid template type %q", typeFilter))
	}

	templates, err := s.templates.ListTemplates(ctx, typeFilter)
	if err != nil {
		return nil, s.storeError(ctx, "list templates", err)
	}
	summaries := make([]templateSummary, 0, len(templates))
	for _, t := range templates {
		summaries = append(summaries, templateSummary{
			ID:         t.ID,
			Title:      t.Title,
			Type:       t.Type,
			CreatedAt:  t.CreatedAt.UTC().Format(timestampLayout),
			ModifiedAt: t.ModifiedAt.UTC().Format(timestampLayout),
		})
	}

	return Result{
		"templates": summaries,
		"total":     len(summaries),
		"message":   fmt.Sprintf("Found %d template(s)", len(summaries)),
	}, nil
}

type clearCacheInput struct {
	ID  int64 `json:"id"`
	All bool  `json:"all"`
}

func (s *Service) clearCache(ctx context.Context, call Call) (Result, error) {
	var in clearCacheInput
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, err
	}

	if in.All {
		if err := s.clearAllCSS(ctx); err != nil {
			return nil, err
		}
		if s.cache.Enabled() {
			return Result{"message": "All Elementor cache cleared"}, nil
		}
		return Result{"message": "Elementor CSS meta cleared (no cache backend configured)"}, nil
	}

	if in.ID != 0 {
		post, err := s.loadPost(ctx, in.ID)
		if err != nil {
			return nil, err
		}
		if err := s.store.DeleteMeta(ctx, post.ID, store.MetaCSS); err != nil {
			return nil, s.storeError(ctx, "clear css meta", err)
		}
		s.cache.Invalidate(ctx, post.ID)
		return Result{"message": fmt.Sprintf("Cache cleared for post %d", post.ID)}, nil
	}

	return nil, validationError(`Provide either "id" or set "all" to true`)
}

func (s *Service) clearAllCSS(ctx context.Context) error {
	if _, err := s.store.DeleteMetaByKey(ctx, store.MetaCSS); err != nil {
		return s.storeError(ctx, "clear css meta", err)
	}
	s.cache.InvalidateAll(ctx)
	return nil
}

type updateSettingsInput struct {
	ID       int64           `json:"id"`
	Settings json.RawMessage `json:"settings"`
	Replace  bool            `json:"replace"`
}

func (s *Service) updateSettings(ctx context.Context, call Call) (Result, error) {
	var in updateSettingsInput
	if err := decodeInput(call.Input, &in); err != nil {
		return nil, err
	}
	if in.ID == 0 {
		return nil, validationError("Post/Page/Kit ID is required")
	}
	if len(in.Settings) > 0 && !bytes.Equal(in.Settings, []byte("null")) && !gjson.ParseBytes(in.Settings).IsObject() {
		return nil, validationError("Settings must be an object")
	}

	post, err := s.loadPost(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	existing, _, err := s.store.GetMeta(ctx, post.ID, store.MetaPageSettings)
	if err != nil {
		return nil, s.storeError(ctx, "load page settings", err)
	}
	merged, err := mergeSettings([]byte(existing), in.Settings, in.Replace)
	if err != nil {
		return nil, domainError(CodeEncoding, "Failed to encode page settings", nil)
	}
	if err := s.store.SavePageSettings(ctx, post.ID, string(merged)); err != nil {
		return nil, s.storeError(ctx, "save page settings", err)
	}
	s.cache.Invalidate(ctx, post.ID)

	if call.Site.ActiveKitID != 0 && call.Site.ActiveKitID == post.ID {
		if err := s.clearAllCSS(ctx); err != nil {
			return nil, err
		}
	}

	return Result{
		"id":       post.ID,
		"settings": json.RawMessage(merged),
		"message":  "Page settings updated successfully",
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
