package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sam-berry/ecfr-lake/data"
)

const (
	// AgenciesKey is the top-level array of an agencies document.
	AgenciesKey = "agencies"
	// CorrectionsKey is the top-level array of a corrections document.
	CorrectionsKey = "ecfr_corrections"
)

// ParseAgencies decodes an agencies document ({"agencies": [...]}) into raw
// records in source order.
func ParseAgencies(content []byte) ([]data.RawRecord, error) {
	return parseDocument(content, AgenciesKey)
}

// ParseCorrections decodes a corrections document ({"ecfr_corrections": [...]}).
func ParseCorrections(content []byte) ([]data.RawRecord, error) {
	return parseDocument(content, CorrectionsKey)
}

// DecodeRecord decodes a single stored record, keeping numbers as json.Number
// so the record hashes exactly like the source it came from.
func DecodeRecord(content []byte) (data.RawRecord, error) {
	var record map[string]any
	if err := decodeStrict(content, &record); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("record is null")
	}
	return record, nil
}

func parseDocument(content []byte, key string) ([]data.RawRecord, error) {
	var doc map[string]any
	if err := decodeStrict(content, &doc); err != nil {
		return nil, err
	}

	value, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("document has no %q array", key)
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%q is %T, not an array", key, value)
	}

	records := make([]data.RawRecord, 0, len(list))
	for i, item := range list {
		record, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is %T, not an object", key, i, item)
		}
		records = append(records, record)
	}
	return records, nil
}

func decodeStrict(content []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(content))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("error parsing JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("error parsing JSON: unexpected data after document")
	}
	return nil
}
