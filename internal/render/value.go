package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is what the user entered for one field: free text for a text box or
// a checked state for a checkbox. In JSON it is a string or a bool.
type Value struct {
	Text    string
	Checked bool
	IsBool  bool
}

// Values maps a field's box_id to its value.
type Values map[string]Value

// TextValue wraps free text.
func TextValue(s string) Value { return Value{Text: s} }

// CheckValue wraps a checkbox state.
func CheckValue(b bool) Value { return Value{Checked: b, IsBool: true} }

// IsChecked reports whether the value ticks a checkbox. Besides true, the
// strings "true", "yes", "1", "x", "✓" and "نعم" count as checked.
func (v Value) IsChecked() bool {
	if v.IsBool {
		return v.Checked
	}
	switch strings.ToLower(strings.TrimSpace(v.Text)) {
	case "true", "yes", "1", "x", "✓", "نعم":
		return true
	}
	return false
}

// MarshalJSON writes a bool for checkbox values and a string otherwise.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsBool {
		return json.Marshal(v.Checked)
	}
	return json.Marshal(v.Text)
}

// UnmarshalJSON accepts a string, a bool, a number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Value{}
		return nil
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = CheckValue(b)
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextValue(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("field value must be a string or bool: %w", err)
		}
		*v = TextValue(n.String())
		return nil
	}
}

// Signature is an image to place on one field.
type Signature struct {
	BoxID string
	Image []byte
}
