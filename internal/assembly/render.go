package assembly

import (
	"fmt"
	"strings"
)

const sectionSeparator = "\n\n"

// Document is a rendered report.
type Document struct {
	Text     string    `json:"text"`
	Sections []Section `json:"sections"`
	// Warnings carries non-fatal problems found while rendering.
	Warnings []string `json:"warnings,omitempty"`
}

// Render concatenates sections as "# <name>", the optional description and
// the content, separated by blank lines. mandatory is the base section list;
// when it names the hard gate, the rendered text is checked for that heading.
func (a *Assembler) Render(sections []Section, mandatory []string) Document {
	doc := Document{Sections: sections}
	if len(sections) == 0 {
		a.log.Warn("no results to render")
		doc.Warnings = append(doc.Warnings, "no sections to render")
		return doc
	}

	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		var b strings.Builder
		b.WriteString("# ")
		b.WriteString(s.Name)
		b.WriteString(sectionSeparator)
		if s.Description != "" {
			b.WriteString(s.Description)
			b.WriteString(sectionSeparator)
		}
		b.WriteString(s.Content)
		parts = append(parts, b.String())
	}
	doc.Text = strings.Join(parts, sectionSeparator)

	a.log.Info("rendered report", "sections", len(parts), "chars", len(doc.Text))

	heading := "# " + strings.ToLower(a.hardGate) + "\n"
	if contains(mandatory, a.hardGate) && !strings.Contains(strings.ToLower(doc.Text), heading) {
		msg := fmt.Sprintf("%s section not found in rendered report", a.hardGate)
		a.log.Warn(msg)
		doc.Warnings = append(doc.Warnings, msg)
	}
	return doc
}
