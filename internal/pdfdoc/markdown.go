package pdfdoc

import (
	"strings"
)

const headingSize = 14

// Markdown renders the text layer as Markdown. Large bold lines become H1
// headings, other bold or large lines H2; pages are separated by a rule.
func (d *Document) Markdown() string {
	var b strings.Builder
	for i, p := range d.Pages {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		if len(p.Lines) == 0 {
			if t := strings.TrimSpace(p.Text); t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
			continue
		}
		for _, l := range p.Lines {
			switch {
			case l.Bold && l.Size >= headingSize:
				b.WriteString("# ")
			case l.Bold || l.Size >= headingSize:
				b.WriteString("## ")
			}
			b.WriteString(l.Text)
			b.WriteString("\n")
		}
	}
	return b.String()
}
