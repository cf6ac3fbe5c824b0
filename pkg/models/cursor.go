package models

import "encoding/json"

// Cursor is the opaque per-source resumable-sync state. The schema of Raw
// is source-type specific (a git sha+branch pair, a Slack timestamp+channel
// pair, ...); the core only ever treats it as an opaque JSON document it
// persists and hands back unchanged.
type Cursor struct {
	SourceID string          `json:"source_id"`
	Raw      json.RawMessage `json:"cursor"`
}

// Decode unmarshals the cursor's opaque payload into dst (typically a
// pointer to a source-specific cursor struct).
func (c Cursor) Decode(dst any) error {
	if len(c.Raw) == 0 {
		return nil
	}
	return json.Unmarshal(c.Raw, dst)
}

// NewCursor marshals src into a Cursor's opaque payload.
func NewCursor(sourceID string, src any) (Cursor, error) {
	raw, err := json.Marshal(src)
	if err != nil {
		return Cursor{}, err
	}
	return Cursor{SourceID: sourceID, Raw: raw}, nil
}
