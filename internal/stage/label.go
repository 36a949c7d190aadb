package stage

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Label renders a stage name for humans: "post_clean_raw" becomes "Post Clean Raw".
func Label(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(name))
	// Casers are stateful, so each call gets its own.
	return cases.Title(language.English).String(strings.Join(words, " "))
}
