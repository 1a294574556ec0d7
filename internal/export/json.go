package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/pavelanni/reflector/internal/model"
)

// JSON renders rec as indented JSON. This is the canonical, lossless form:
// ParseJSON restores a record that renders identically in every format.
func JSON(rec *model.ExportRecord) ([]byte, error) {
	if err := Validate(rec); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export record: %w", err)
	}
	return data, nil
}

// ParseJSON reads a record previously produced by JSON.
func ParseJSON(data []byte) (*model.ExportRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var rec model.ExportRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("parse export record: %w", err)
	}
	if err := Validate(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
