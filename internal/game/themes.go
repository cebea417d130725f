package game

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"popreveal/internal/round"
)

//go:embed themes/*.yaml
var themesFS embed.FS

// ErrNoThemes is returned when a theme directory holds no usable theme.
var ErrNoThemes = errors.New("no themes found")

// Catalog holds the themes a session can pick from.
type Catalog struct {
	themes map[string]round.Theme
	order  []string
	def    string
}

// EmbeddedCatalog loads the themes compiled into the binary.
func EmbeddedCatalog(defaultID string) (*Catalog, error) {
	sub, err := fs.Sub(themesFS, "themes")
	if err != nil {
		return nil, err
	}
	return LoadCatalog(sub, defaultID)
}

// LoadCatalog reads every *.yaml file at the root of fsys. defaultID picks the
// theme used before the player chooses one; empty means the first by id.
func LoadCatalog(fsys fs.FS, defaultID string) (*Catalog, error) {
	names, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	c := &Catalog{themes: make(map[string]round.Theme)}
	for _, name := range names {
		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		var t round.Theme
		if err := yaml.Unmarshal(b, &t); err != nil {
			return nil, fmt.Errorf("theme %s: %w", path.Base(name), err)
		}
		if err := validateTheme(t); err != nil {
			return nil, fmt.Errorf("theme %s: %w", path.Base(name), err)
		}
		if _, dup := c.themes[t.ID]; dup {
			return nil, fmt.Errorf("theme %s: duplicate id %q", path.Base(name), t.ID)
		}
		c.themes[t.ID] = t
		c.order = append(c.order, t.ID)
	}
	if len(c.order) == 0 {
		return nil, ErrNoThemes
	}
	sort.Strings(c.order)
	c.def = c.order[0]
	if defaultID != "" {
		if _, ok := c.themes[defaultID]; !ok {
			return nil, fmt.Errorf("%w: default %q", round.ErrUnknownTheme, defaultID)
		}
		c.def = defaultID
	}
	return c, nil
}

func validateTheme(t round.Theme) error {
	if t.ID == "" {
		return errors.New("missing id")
	}
	if len(t.Variants) == 0 {
		return errors.New("no variants")
	}
	seen := make(map[string]struct{}, len(t.Variants))
	for _, v := range t.Variants {
		if v.Name == "" || v.Color == "" {
			return errors.New("variant needs name and color")
		}
		if _, dup := seen[v.Name]; dup {
			return fmt.Errorf("duplicate variant %q", v.Name)
		}
		seen[v.Name] = struct{}{}
	}
	return nil
}

// Theme returns the theme with id.
func (c *Catalog) Theme(id string) (round.Theme, bool) {
	t, ok := c.themes[id]
	return t, ok
}

// Default returns the theme used before one is selected.
func (c *Catalog) Default() round.Theme {
	return c.themes[c.def]
}

// Themes lists every theme ordered by id.
func (c *Catalog) Themes() []round.Theme {
	out := make([]round.Theme, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.themes[id])
	}
	return out
}
