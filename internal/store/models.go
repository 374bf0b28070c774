package store

import "time"

// Meta keys used by the page builder.
const (
	MetaLayout       = "_elementor_data"
	MetaEditMode     = "_elementor_edit_mode"
	MetaPageSettings = "_elementor_page_settings"
	MetaCSS          = "_elementor_css"
	MetaTemplateType = "_elementor_template_type"
)

const (
	OptionActiveKit  = "elementor_active_kit"
	PostTypeTemplate = "elementor_library"
	StatusPublish    = "publish"
	EditModeBuilder  = "builder"
	TemplateTypeAll  = "all"
	templateListCap  = 100
)

type Post struct {
	ID         int64
	Title      string
	Slug       string
	Type       string
	Status     string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Template is a saved page-builder template.
type Template struct {
	ID         int64
	Title      string
	Type       string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// LayoutWrite controls the side effects of SaveLayout.
type LayoutWrite struct {
	// BuilderMode also marks the post as edited with the page builder.
	BuilderMode bool
}
