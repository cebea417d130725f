package viewmodel

import (
	"fmt"
	"strings"

	"github.com/a-h/templ"

	"popreveal/internal/game"
	"popreveal/internal/reveal"
	"popreveal/internal/round"
)

// ThemeOption is a theme choice for the picker.
type ThemeOption struct {
	ID       string
	Name     string
	Selected bool
	// Preview and Swatches are sanitized style declarations.
	Preview  templ.SafeCSS
	Swatches []templ.SafeCSS
}

// HomePage holds data for the landing page.
type HomePage struct {
	Title  string
	Themes []ThemeOption
}

// GamePage holds data for the play surface.
type GamePage struct {
	Title      string
	SessionID  string
	ShareURL   string
	Theme      ThemeOption
	Themes     []ThemeOption
	Reveal     string
	// SceneStyle is the scene's background and, for score-driven reveal,
	// its filter levels.
	SceneStyle templ.SafeCSS
	MaskURL    string
	Controls   Controls
}

// Controls holds data for the HUD and the buttons valid in the current status.
type Controls struct {
	SessionID     string
	Status        string
	StatusLabel   string
	TimeRemaining int
	Stage         int
	Score         int
	WinTarget     int
	Remaining     int
	Feedback      string
	Actions       []Action
}

// Action is a button that posts to /session/{id}/{Name}.
type Action struct {
	Name  string
	Label string
}

var statusLabels = map[round.Status]string{
	round.StatusIdle:        "Ready",
	round.StatusSelectTheme: "Pick a scene",
	round.StatusSpawning:    "Growing",
	round.StatusCountdown:   "Get set",
	round.StatusPlaying:     "Pop!",
	round.StatusViewing:     "Take a look",
	round.StatusWon:         "Cleared",
	round.StatusLost:        "Time's up",
}

// NewControls maps a session HUD onto the controls fragment.
func NewControls(sessionID string, hud game.HUD) Controls {
	st := hud.Status
	return Controls{
		SessionID:     sessionID,
		Status:        string(st),
		StatusLabel:   statusLabels[st],
		TimeRemaining: hud.TimeRemaining,
		Stage:         hud.StageRemaining,
		Score:         hud.Score,
		WinTarget:     hud.WinTarget,
		Remaining:     hud.Remaining,
		Feedback:      hud.FeedbackMessage,
		Actions:       actionsFor(st),
	}
}

func actionsFor(st round.Status) []Action {
	var out []Action
	add := func(ok bool, name, label string) {
		if ok {
			out = append(out, Action{Name: name, Label: label})
		}
	}
	add(st == round.StatusIdle || st == round.StatusSelectTheme, "start", "Start")
	add(st == round.StatusIdle, "themes", "Choose scene")
	add(st == round.StatusViewing, "skip", "Skip")
	add(st != round.StatusIdle && st != round.StatusSelectTheme, "restart", "Restart")
	add(st != round.StatusIdle, "quit", "Quit")
	return out
}

// NewThemeOptions lists themes for the picker, marking selected.
func NewThemeOptions(themes []round.Theme, selected string) []ThemeOption {
	out := make([]ThemeOption, 0, len(themes))
	for _, t := range themes {
		opt := NewThemeOption(t)
		opt.Selected = t.ID == selected
		out = append(out, opt)
	}
	return out
}

// NewThemeOption maps one theme.
func NewThemeOption(t round.Theme) ThemeOption {
	swatches := make([]templ.SafeCSS, 0, len(t.Variants))
	for _, v := range t.Variants {
		swatches = append(swatches, templ.SanitizeCSS("background-color", v.Color))
	}
	return ThemeOption{ID: t.ID, Name: t.Name, Preview: BackgroundImage(t.Background), Swatches: swatches}
}

var cssURLEscaper = strings.NewReplacer(
	"'", "%27", `"`, "%22", "(", "%28", ")", "%29", `\`, "%5C", ",", "%2C",
	"<", "%3C", ">", "%3E", "&", "%26", ";", "%3B", " ", "%20", "\n", "", "\r", "",
)

// CSSURL wraps path in an unquoted url(). Anything that could end the
// function, split the value or need HTML escaping is percent-encoded, since
// style attributes escape their value a second time.
func CSSURL(path string) string {
	return "url(" + cssURLEscaper.Replace(path) + ")"
}

// BackgroundImage is a background-image declaration for path. Paths with an
// unsafe scheme come out as templ's innocuous placeholder.
func BackgroundImage(path string) templ.SafeCSS {
	return templ.SanitizeCSS("background-image", CSSURL(path))
}

// SceneStyle is the inline style of the hidden scene. Score-driven reveal
// adds the opacity and filter for l.
func SceneStyle(background string, l reveal.Levels, scoreDriven bool) templ.SafeCSS {
	css := BackgroundImage(background)
	if scoreDriven {
		css += templ.SafeCSS(fmt.Sprintf("opacity:%.3f;filter:blur(%.1fpx) brightness(%.3f);",
			l.Opacity, l.BlurPx, l.Brightness))
	}
	return css
}
