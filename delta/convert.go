// Package delta renders rich documents as linear markdown-like text.
package delta

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragsync/core"
)

// blankHeading is the placeholder the source editor stores for an empty heading.
const blankHeading = "*"

// Convert renders doc as text.
//
// Zones are rendered in document order and each is followed by a newline.
// Within a zone, ops are rendered by kind:
//
//	heading 1   "\n# " + text
//	heading 2   "\n## " + text
//	blockquote  "> " + text
//	bullet      "- " + text
//	hyperlink   "[" + text + "](" + href + ")"
//	auto URL    "[" + text + "](" + href + ")"
//	bold        "**" + text + "**"
//	image       nothing
//	plain       text
//
// Ops with empty text and no attributes are skipped. A hyperlink or auto URL
// op without a target, or a heading with an unsupported level, is reported
// as a core.ErrParse error.
func Convert(doc core.RichDocument) (string, error) {
	var b strings.Builder

	for _, zone := range doc.Zones {
		for i, op := range zone.Ops {
			if op.Text == "" && op.Raw {
				continue
			}
			if err := writeOp(&b, op); err != nil {
				return "", fmt.Errorf("%w: zone %s op %d: %w", core.ErrParse, zone.ID, i, err)
			}
		}
		b.WriteByte('\n')
	}

	return b.String(), nil
}

func writeOp(b *strings.Builder, op core.Op) error {
	switch op.Kind {
	case core.OpHeading:
		text := op.Text
		if text == blankHeading {
			text = ""
		}
		switch op.Level {
		case 1:
			b.WriteString("\n# ")
		case 2:
			b.WriteString("\n## ")
		default:
			return fmt.Errorf("unsupported heading level %d", op.Level)
		}
		b.WriteString(text)
	case core.OpBlockquote:
		b.WriteString("> ")
		b.WriteString(op.Text)
	case core.OpBulletList:
		b.WriteString("- ")
		b.WriteString(op.Text)
	case core.OpHyperlink, core.OpAutoURL:
		if op.Href == "" {
			return fmt.Errorf("%s op %q has no target", op.Kind, op.Text)
		}
		b.WriteString("[")
		b.WriteString(op.Text)
		b.WriteString("](")
		b.WriteString(op.Href)
		b.WriteString(")")
	case core.OpBold:
		b.WriteString("**")
		b.WriteString(op.Text)
		b.WriteString("**")
	case core.OpImage:
		// Images carry no renderable text.
	default:
		b.WriteString(op.Text)
	}
	return nil
}
