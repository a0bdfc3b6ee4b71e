// Package fusion joins detector geometry with the labels returned by the
// labeling service into the canonical field list shown to users.
package fusion

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/ironsheep/form-annotator-mcp/internal/detection"
	"github.com/ironsheep/form-annotator-mcp/internal/geometry"
	"github.com/ironsheep/form-annotator-mcp/internal/layout"
)

// FieldType is the kind of value a field accepts.
type FieldType string

const (
	Textbox  FieldType = "textbox"
	Checkbox FieldType = "checkbox"
)

// Label is one entry returned by the labeling service. ID is the 1-based
// number drawn on the overlay image.
type Label struct {
	ID    int    `json:"id"`
	Label string `json:"label"`

	// Valid is the service's own judgement of whether the numbered box is a
	// real input field. A nil Valid counts as valid.
	Valid *bool `json:"valid,omitempty"`
}

// Field is a canonical, user-facing form field.
type Field struct {
	BoxID string       `json:"box_id"`
	Label string       `json:"label"`
	Type  FieldType    `json:"type"`
	Box   geometry.Box `json:"-"`
}

// MarshalJSON writes the box as [x, y, w, h].
func (f Field) MarshalJSON() ([]byte, error) {
	x, y, w, h := f.Box.XYWH()
	return json.Marshal(struct {
		BoxID string     `json:"box_id"`
		Label string     `json:"label"`
		Type  FieldType  `json:"type"`
		Box   [4]float64 `json:"box"`
	}{f.BoxID, f.Label, f.Type, [4]float64{x, y, w, h}})
}

// UnmarshalJSON reads the [x, y, w, h] box form.
func (f *Field) UnmarshalJSON(data []byte) error {
	var raw struct {
		BoxID string     `json:"box_id"`
		Label string     `json:"label"`
		Type  FieldType  `json:"type"`
		Box   [4]float64 `json:"box"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = Field{
		BoxID: raw.BoxID,
		Label: raw.Label,
		Type:  raw.Type,
		Box:   geometry.FromXYWH(raw.Box[0], raw.Box[1], raw.Box[2], raw.Box[3]),
	}
	return nil
}

// BoxID returns the identifier of the field at 1-based reading position i.
// Identifiers are positional, so the same ordered input always yields the
// same ids.
func BoxID(position int) string {
	return fmt.Sprintf("box_%d", position-1)
}

// TypeForClass maps a detector class onto a field type.
func TypeForClass(class string) FieldType {
	if detection.IsTextLike(class) {
		return Textbox
	}
	return Checkbox
}

// Fuse builds the canonical field list.
//
// Each ordered field at position i is emitted only when labels contain a
// usable entry with ID i; unlabeled positions are dropped silently. Labels
// that are blank or explicitly marked invalid are unusable. When several
// labels share an ID the last one wins. Output keeps reading order.
func Fuse(ordered []layout.OrderedField, labels []Label) []Field {
	byID := make(map[int]string, len(labels))
	for _, l := range labels {
		if l.Valid != nil && !*l.Valid {
			delete(byID, l.ID)
			continue
		}
		text := strings.TrimSpace(l.Label)
		if text == "" {
			continue
		}
		byID[l.ID] = text
	}

	fields := make([]Field, 0, len(ordered))
	for _, of := range ordered {
		label, ok := byID[of.Index]
		if !ok {
			continue
		}
		fields = append(fields, Field{
			BoxID: BoxID(of.Index),
			Label: label,
			Type:  TypeForClass(of.Class),
			Box:   of.Box,
		})
	}
	return fields
}

var (
	signatureEnglish = regexp.MustCompile(
		`(?i)\b(signatures?|signed|sign ?here|sign ?by|sign ?date|autograph|endorsement)\b`)

	signatureArabic = map[string]bool{
		"توقيع": true, "التوقيع": true, "توقيعي": true, "توقيعك": true, "توقيعه": true, "توقيعها": true,
		"امضاء": true, "الامضاء": true, "امضائي": true, "امضاؤك": true, "امضاؤه": true, "امضاؤها": true,
		"اعتماد": true, "موافقة": true, "تصديق": true, "ختم": true, "الختم": true,
		"وقع": true, "يوقع": true, "موقع": true, "موقعة": true, "موقعه": true,
		"اوقع": true, "يووقع": true, "مووقع": true,
	}
)

// IsSignatureLabel reports whether a field label asks for a signature.
// English keywords match on word boundaries; Arabic keywords must be whole
// words so that e.g. "موقعكم" does not trigger on "موقع".
func IsSignatureLabel(label string) bool {
	if signatureEnglish.MatchString(label) {
		return true
	}
	words := strings.FieldsFunc(label, func(r rune) bool { return !unicode.IsLetter(r) })
	for _, w := range words {
		if signatureArabic[w] {
			return true
		}
	}
	return false
}

// SignatureFields returns the text fields whose label asks for a signature.
func SignatureFields(fields []Field) []Field {
	out := make([]Field, 0)
	for _, f := range fields {
		if f.Type == Textbox && IsSignatureLabel(f.Label) {
			out = append(out, f)
		}
	}
	return out
}
