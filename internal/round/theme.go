package round

// Variant is a visual class of entity.
type Variant struct {
	Name  string `yaml:"name" json:"name"`
	Color string `yaml:"color" json:"color"`
}

// Theme is the scene a round reveals and the look of its entities.
type Theme struct {
	ID         string    `yaml:"id" json:"id"`
	Name       string    `yaml:"name" json:"name"`
	Background string    `yaml:"background" json:"background"`
	Variants   []Variant `yaml:"variants" json:"variants"`
	WonPrompt  string    `yaml:"won_prompt" json:"-"`
	LostPrompt string    `yaml:"lost_prompt" json:"-"`
}

// VariantNames lists the theme's variant names in order.
func (t Theme) VariantNames() []string {
	out := make([]string, 0, len(t.Variants))
	for _, v := range t.Variants {
		out = append(out, v.Name)
	}
	return out
}

// Color returns the color of the named variant, or the first variant's.
func (t Theme) Color(variant string) string {
	for _, v := range t.Variants {
		if v.Name == variant {
			return v.Color
		}
	}
	if len(t.Variants) > 0 {
		return t.Variants[0].Color
	}
	return "#d32f2f"
}

// Catalog looks themes up by id.
type Catalog interface {
	Theme(id string) (Theme, bool)
	Default() Theme
}

// DefaultTheme is used when no catalog is configured.
var DefaultTheme = Theme{
	ID:         "orchard",
	Name:       "Orchard",
	Background: "/static/scenes/orchard.svg",
	Variants:   []Variant{{Name: "red", Color: "#d32f2f"}},
}

type staticCatalog struct{}

func (staticCatalog) Theme(id string) (Theme, bool) {
	if id == DefaultTheme.ID {
		return DefaultTheme, true
	}
	return Theme{}, false
}

func (staticCatalog) Default() Theme {
	return DefaultTheme
}
