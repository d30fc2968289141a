package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/ragsync/core"
)

// catalogPage is one page of the catalog listing.
type catalogPage struct {
	Items   []catalogEntry `json:"items"`
	HasMore bool           `json:"has_more"`
}

type catalogEntry struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	UpdatedAt int64    `json:"updated_at"`
	Path      []string `json:"path"`
}

func (e catalogEntry) toCatalogItem() core.CatalogItem {
	return core.CatalogItem{
		ID:           e.ID,
		Title:        e.Title,
		UpdatedAt:    e.UpdatedAt,
		PathSegments: e.Path,
	}
}

// itemPayload is the body of an item fetch. Content is parsed separately so
// zone order survives.
type itemPayload struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	UpdatedAt int64           `json:"updated_at"`
	Content   json.RawMessage `json:"content"`
}

type wireZone struct {
	Ops []wireOp `json:"ops"`
}

type wireOp struct {
	Insert     json.RawMessage `json:"insert"`
	Attributes *wireAttributes `json:"attributes"`
}

type wireAttributes struct {
	Heading    string          `json:"heading"`
	Blockquote bool            `json:"blockquote"`
	List       string          `json:"list"`
	Hyperlink  string          `json:"hyperlink"`
	AutoURL    string          `json:"autoUrl"`
	Bold       bool            `json:"bold"`
	Image      json.RawMessage `json:"image"`
}

func (a *wireAttributes) empty() bool {
	return a == nil || (a.Heading == "" && !a.Blockquote && a.List == "" &&
		a.Hyperlink == "" && a.AutoURL == "" && !a.Bold && !hasValue(a.Image))
}

// hyperlinkTarget is the JSON document carried in the hyperlink attribute.
type hyperlinkTarget struct {
	Href string `json:"href"`
}

func hasValue(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) && !bytes.Equal(trimmed, []byte("false"))
}

// ParseRichDocument parses the content object of an item payload.
//
// The content object maps zone ids to {"ops": [...]}. Zones keep the order
// in which they appear in the JSON. Each op's attribute bag is resolved into
// a single core.OpKind using the first matching attribute in this order:
// heading, blockquote, list, hyperlink, autoUrl, bold, image.
//
// Empty or null content yields an empty document.
func ParseRichDocument(data []byte) (core.RichDocument, error) {
	var doc core.RichDocument

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return doc, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return doc, fmt.Errorf("%w: reading content: %w", core.ErrParse, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return doc, fmt.Errorf("%w: content must be an object", core.ErrParse)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return doc, fmt.Errorf("%w: reading zone id: %w", core.ErrParse, err)
		}
		zoneID, ok := tok.(string)
		if !ok {
			return doc, fmt.Errorf("%w: zone id is not a string", core.ErrParse)
		}

		var wz wireZone
		if err := dec.Decode(&wz); err != nil {
			return doc, fmt.Errorf("%w: zone %s: %w", core.ErrParse, zoneID, err)
		}

		zone := core.Zone{ID: zoneID, Ops: make([]core.Op, 0, len(wz.Ops))}
		for i, wop := range wz.Ops {
			op, err := parseOp(wop)
			if err != nil {
				return doc, fmt.Errorf("%w: zone %s op %d: %w", core.ErrParse, zoneID, i, err)
			}
			zone.Ops = append(zone.Ops, op)
		}
		doc.Zones = append(doc.Zones, zone)
	}

	if _, err := dec.Token(); err != nil {
		return doc, fmt.Errorf("%w: closing content: %w", core.ErrParse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return doc, fmt.Errorf("%w: trailing data after content", core.ErrParse)
	}

	return doc, nil
}

func parseOp(wop wireOp) (core.Op, error) {
	op := core.Op{Kind: core.OpPlain, Raw: wop.Attributes.empty()}

	// Embeds such as {"image": "..."} arrive as object inserts.
	if insert := bytes.TrimSpace(wop.Insert); len(insert) > 0 && insert[0] == '{' {
		op.Kind = core.OpImage
		return op, nil
	}
	if hasValue(wop.Insert) {
		if err := json.Unmarshal(wop.Insert, &op.Text); err != nil {
			return op, fmt.Errorf("insert is not a string: %w", err)
		}
	}

	a := wop.Attributes
	if a == nil {
		return op, nil
	}

	switch {
	case a.Heading == "h1":
		op.Kind, op.Level = core.OpHeading, 1
	case a.Heading == "h2":
		op.Kind, op.Level = core.OpHeading, 2
	case a.Blockquote:
		op.Kind = core.OpBlockquote
	case strings.HasPrefix(a.List, "bullet"):
		op.Kind = core.OpBulletList
	case a.Hyperlink != "":
		var target hyperlinkTarget
		if err := json.Unmarshal([]byte(a.Hyperlink), &target); err != nil {
			return op, fmt.Errorf("malformed hyperlink attribute %q: %w", a.Hyperlink, err)
		}
		if target.Href == "" {
			return op, fmt.Errorf("hyperlink attribute %q has no href", a.Hyperlink)
		}
		op.Kind, op.Href = core.OpHyperlink, target.Href
	case a.AutoURL != "":
		op.Kind, op.Href = core.OpAutoURL, a.AutoURL
	case a.Bold:
		op.Kind = core.OpBold
	case hasValue(a.Image):
		op.Kind = core.OpImage
	}

	return op, nil
}
