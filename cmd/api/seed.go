package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pagekit/api/internal/config"
	"pagekit/api/internal/logging"
	"pagekit/api/internal/store"
)

// seedFile is the YAML fixture accepted by `pagekit seed`. Layout and page
// settings may be given as YAML structures or as JSON strings.
type seedFile struct {
	Options map[string]string `yaml:"options"`
	Posts   []seedPost        `yaml:"posts"`
}

type seedPost struct {
	Title        string            `yaml:"title"`
	Slug         string            `yaml:"slug"`
	Type         string            `yaml:"type"`
	Status       string            `yaml:"status"`
	TemplateType string            `yaml:"template_type"`
	ActiveKit    bool              `yaml:"active_kit"`
	Layout       any               `yaml:"layout"`
	PageSettings any               `yaml:"page_settings"`
	Meta         map[string]string `yaml:"meta"`
}

type seeder interface {
	InsertPost(context.Context, store.Post) (int64, error)
	SetMeta(context.Context, int64, string, string) error
	SetOption(context.Context, string, string) error
}

func newSeedCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Insert posts, meta and options from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := readSeedFile(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database connection failed: %w", err)
			}
			defer db.Close()
			if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
				return fmt.Errorf("migrations failed: %w", err)
			}

			ids, err := seedSite(ctx, store.NewPostgresStore(db), file)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"post_ids": ids, "total": len(ids)})
		},
	}
}

func readSeedFile(path string) (seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seedFile{}, fmt.Errorf("read seed file: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return seedFile{}, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return file, nil
}

// seedSite writes the fixture and returns the new post ids in file order.
func seedSite(ctx context.Context, s seeder, file seedFile) ([]int64, error) {
	log := logging.FromContext(ctx)
	ids := make([]int64, 0, len(file.Posts))

	for i, p := range file.Posts {
		post := store.Post{Title: p.Title, Slug: p.Slug, Type: p.Type, Status: p.Status}
		if post.Type == "" {
			post.Type = "page"
		}
		if post.Status == "" {
			post.Status = store.StatusPublish
		}
		id, err := s.InsertPost(ctx, post)
		if err != nil {
			return ids, fmt.Errorf("seed post %d: %w", i, err)
		}
		ids = append(ids, id)

		meta := map[string]string{}
		for key, value := range p.Meta {
			meta[key] = value
		}
		if p.Layout != nil {
			raw, err := jsonText(p.Layout)
			if err != nil {
				return ids, fmt.Errorf("seed post %d layout: %w", i, err)
			}
			meta[store.MetaLayout] = raw
			meta[store.MetaEditMode] = store.EditModeBuilder
		}
		if p.PageSettings != nil {
			raw, err := jsonText(p.PageSettings)
			if err != nil {
				return ids, fmt.Errorf("seed post %d page settings: %w", i, err)
			}
			meta[store.MetaPageSettings] = raw
		}
		if p.TemplateType != "" {
			meta[store.MetaTemplateType] = p.TemplateType
		}
		for key, value := range meta {
			if err := s.SetMeta(ctx, id, key, value); err != nil {
				return ids, fmt.Errorf("seed post %d meta %s: %w", i, key, err)
			}
		}

		if p.ActiveKit {
			if err := s.SetOption(ctx, store.OptionActiveKit, strconv.FormatInt(id, 10)); err != nil {
				return ids, fmt.Errorf("seed active kit: %w", err)
			}
		}
		log.Debug().Int64("post_id", id).Str("slug", p.Slug).Msg("post seeded")
	}

	for name, value := range file.Options {
		if err := s.SetOption(ctx, name, value); err != nil {
			return ids, fmt.Errorf("seed option %s: %w", name, err)
		}
	}
	log.Info().Int("posts", len(ids)).Int("options", len(file.Options)).Msg("seed applied")
	return ids, nil
}

// jsonText returns a string value as-is and encodes anything else.
func jsonText(value any) (string, error) {
	if s, ok := value.(string); ok {
		if !json.Valid([]byte(s)) {
			return "", fmt.Errorf("not valid JSON")
		}
		return s, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
