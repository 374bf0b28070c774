package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"pagekit/api/internal/rbac"
)

// Annotations describe an ability's side effects to clients.
type Annotations struct {
	Readonly    bool `json:"readonly"`
	Destructive bool `json:"destructive"`
	Idempotent  bool `json:"idempotent"`
}

// Caller is the authenticated principal running an ability.
type Caller struct {
	UserID string
	Name   string
	Role   rbac.Role
}

// Site is the per-request view of site-wide settings.
type Site struct {
	URL         string
	ActiveKitID int64
}

// Call is everything an ability needs to run. Nothing is read from ambient
// state.
type Call struct {
	Input  json.RawMessage
	Caller Caller
	Site   Site
}

// Result is the response envelope. Execute always sets "success" and
// "message".
type Result map[string]any

type ExecuteFunc func(ctx context.Context, call Call) (Result, error)

type Ability struct {
	Name        string
	Label       string
	Description string
	InputSchema json.RawMessage
	Annotations Annotations
	Capability  rbac.Capability
	Execute     ExecuteFunc
}

// AbilityInfo is the published description of an ability.
type AbilityInfo struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	Annotations Annotations     `json:"annotations"`
	Capability  string          `json:"capability"`
}

func (a *Ability) Info() AbilityInfo {
	return AbilityInfo{
		Name:        a.Name,
		Label:       a.Label,
		Description: a.Description,
		InputSchema: a.InputSchema,
		Annotations: a.Annotations,
		Capability:  string(a.Capability),
	}
}

type Registry struct {
	abilities map[string]*Ability
}

func NewRegistry() *Registry {
	return &Registry{abilities: make(map[string]*Ability)}
}

func (r *Registry) Register(ability *Ability) error {
	if ability.Name == "" || ability.Execute == nil {
		return fmt.Errorf("ability %q is incomplete", ability.Name)
	}
	if !json.Valid(ability.InputSchema) {
		return fmt.Errorf("ability %s: input schema is not valid JSON", ability.Name)
	}
	if _, exists := r.abilities[ability.Name]; exists {
		return fmt.Errorf("ability %s already registered", ability.Name)
	}
	r.abilities[ability.Name] = ability
	return nil
}

func (r *Registry) Lookup(name string) (*Ability, bool) {
	ability, ok := r.abilities[name]
	return ability, ok
}

// List returns the registered abilities sorted by name.
func (r *Registry) List() []*Ability {
	out := make([]*Ability, 0, len(r.abilities))
	for _, ability := range r.abilities {
		out = append(out, ability)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
