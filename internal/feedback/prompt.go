package feedback

import (
	"strconv"
	"strings"
)

// Default prompt templates. {score} and {target} are substituted.
const (
	DefaultWonPrompt  = "Congratulate the player for clearing all {target} objects. Keep it energetic and brief."
	DefaultLostPrompt = "The player ran out of time after popping {score} of {target} objects. Give a short, funny encouragement."
)

// Prompt renders the template for the outcome, falling back to the defaults
// when the template is empty.
func Prompt(o Outcome, score, target int, wonTmpl, lostTmpl string) string {
	tmpl, def := lostTmpl, DefaultLostPrompt
	if o == Won {
		tmpl, def = wonTmpl, DefaultWonPrompt
	}
	if strings.TrimSpace(tmpl) == "" {
		tmpl = def
	}
	return strings.NewReplacer(
		"{score}", strconv.Itoa(score),
		"{target}", strconv.Itoa(target),
	).Replace(tmpl)
}
