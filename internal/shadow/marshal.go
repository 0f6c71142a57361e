package shadow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/cibconf/internal/model"
)

// marshalObject encodes an object for the body column. HTML escaping is
// disabled so stored values read back byte for byte.
func marshalObject(o *model.Object) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(o); err != nil {
		return "", fmt.Errorf("marshal object %s: %w", o.ID, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalObject(body string) (*model.Object, error) {
	var o model.Object
	if err := json.Unmarshal([]byte(body), &o); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	if model.SpecOf(o.Kind) == nil {
		return nil, fmt.Errorf("unmarshal object %s: unknown kind %q", o.ID, o.Kind)
	}
	return &o, nil
}
