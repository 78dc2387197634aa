package persistence

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/linkup-social/flowkit/pkg/api"
)

func init() {
	gob.Register(time.Time{})
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// EncodeContext serializes a run context using encoding/gob. A nil or empty
// context encodes to nil.
func EncodeContext(c api.Context) ([]byte, error) {
	if len(c) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(map[string]any(c)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeContext is the inverse of EncodeContext. Empty input decodes to an
// empty, non-nil context so callers can merge into it directly.
func DecodeContext(data []byte) (api.Context, error) {
	if len(data) == 0 {
		return api.Context{}, nil
	}
	var m map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return nil, err
	}
	return api.Context(m), nil
}
