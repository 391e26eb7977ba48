package backend

import (
	"bytes"
	"encoding/json"
)

// listEnvelope decodes a list that arrives either bare or wrapped under
// "data" or "items".
type listEnvelope[T any] struct {
	list []T
}

func (e *listEnvelope[T]) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		return json.Unmarshal(raw, &e.list)
	}
	var wrapped struct {
		Data  []T `json:"data"`
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return err
	}
	e.list = wrapped.Data
	if e.list == nil {
		e.list = wrapped.Items
	}
	return nil
}

func (e *listEnvelope[T]) items() []T {
	if e.list == nil {
		return []T{}
	}
	return e.list
}
