package planner

// Default palette used when the model omits a colour or returns an invalid one.
const (
	DefaultPrimary    = "#6366F1"
	DefaultSecondary  = "#8B5CF6"
	DefaultAccent     = "#F59E0B"
	DefaultBackground = "#0F172A"
	DefaultText       = "#FFFFFF"

	DefaultLayout = "centered"
)

// Palette is the colour scheme of a design.
type Palette struct {
	Primary    string `json:"primary" validate:"required,hexcolor"`
	Secondary  string `json:"secondary" validate:"required,hexcolor"`
	Accent     string `json:"accent" validate:"required,hexcolor"`
	Background string `json:"background" validate:"required,hexcolor"`
	Text       string `json:"text" validate:"required,hexcolor"`
}

// Plan is the design a renderer composes: copy, palette, layout and what to
// put behind it.
type Plan struct {
	Headline      string  `json:"headline" validate:"required,max=120"`
	Subheadline   string  `json:"subheadline,omitempty" validate:"max=200"`
	CTA           string  `json:"cta,omitempty" validate:"max=40"`
	Layout        string  `json:"layout" validate:"required,layout"`
	Palette       Palette `json:"palette"`
	ImageQuery    string  `json:"image_query"`
	ImagePrompt   string  `json:"image_prompt"`
	Mood          string  `json:"mood,omitempty"`
	Font          string  `json:"font,omitempty"`
	UseBackground bool    `json:"use_background"`
}

// Brief is what the planner is asked to design for.
type Brief struct {
	Prompt      string
	Platform    string
	Width       int
	Height      int
	BrandColors []string
}
