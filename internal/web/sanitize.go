package web

import (
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

// notePolicy allows the inline markup deck authors use in notes (emphasis,
// ruby annotations for readings, images) and strips everything else.
var notePolicy = bluemonday.UGCPolicy().
	AllowElements("ruby", "rt", "rp", "mark").
	AllowAttrs("class").OnElements("span")

// noteHTML sanitizes a note field for rendering as markup.
func noteHTML(s string) template.HTML {
	return template.HTML(notePolicy.Sanitize(s))
}
