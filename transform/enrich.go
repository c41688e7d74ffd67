package transform

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/sam-berry/ecfr-lake/checksum"
	"github.com/sam-berry/ecfr-lake/data"
)

const DateLayout = "2006-01-02"

const secondsPerDay = 24 * 60 * 60

// LagDays returns corrected minus occurred in whole days. It is nil when either
// date is missing or is not a YYYY-MM-DD calendar date. A negative lag is kept
// as is.
func LagDays(occurred, corrected *string) *int64 {
	if occurred == nil || corrected == nil {
		return nil
	}
	from, err := time.Parse(DateLayout, *occurred)
	if err != nil {
		return nil
	}
	to, err := time.Parse(DateLayout, *corrected)
	if err != nil {
		return nil
	}
	days := (to.Unix() - from.Unix()) / secondsPerDay
	return &days
}

// Citation is the first CFR reference of a correction projected to columns.
type Citation struct {
	CfrReference *string
	Chapter      *string
	Part         *string
	Section      *string
}

// DecomposeCitation reads the first element of cfr_references. A missing or
// empty list yields an all-nil citation.
func DecomposeCitation(record map[string]any) Citation {
	refs, _ := record["cfr_references"].([]any)
	if len(refs) == 0 {
		return Citation{}
	}
	first, ok := refs[0].(map[string]any)
	if !ok {
		return Citation{}
	}

	c := Citation{CfrReference: optionalString(first["cfr_reference"])}
	if h, ok := first["hierarchy"].(map[string]any); ok {
		c.Chapter = optionalString(h["chapter"])
		c.Part = optionalString(h["part"])
		c.Section = optionalString(h["section"])
	}
	return c
}

// EnrichCorrection derives the parsed columns of one correction. Ids and the
// checksum are filled in by EnrichCorrections.
func EnrichCorrection(record map[string]any) data.CorrectionRow {
	citation := DecomposeCitation(record)
	occurred := optionalString(record["error_occurred"])
	corrected := optionalString(record["error_corrected"])
	title, _ := optionalInt(record["title"])
	year, _ := optionalInt(record["year"])

	return data.CorrectionRow{
		CfrReference:     citation.CfrReference,
		Title:            title,
		Chapter:          citation.Chapter,
		Part:             citation.Part,
		Section:          citation.Section,
		CorrectiveAction: optionalString(record["corrective_action"]),
		ErrorOccurred:    occurred,
		ErrorCorrected:   corrected,
		LagDays:          LagDays(occurred, corrected),
		FrCitation:       optionalString(record["fr_citation"]),
		Year:             year,
	}
}

type EnrichResult struct {
	Raw  []data.CorrectionRaw
	Rows []data.CorrectionRow
}

// EnrichCorrections builds the raw and parsed rows of a corrections document.
// Row ids are 1-based source positions; ecfr ids must be present, integral and
// unique.
func EnrichCorrections(records []data.RawRecord) (*EnrichResult, error) {
	res := &EnrichResult{
		Raw:  make([]data.CorrectionRaw, 0, len(records)),
		Rows: make([]data.CorrectionRow, 0, len(records)),
	}
	seen := make(map[int64]int, len(records))

	for i, record := range records {
		ecfrID, err := naturalID(i, record)
		if err != nil {
			return nil, err
		}
		key := strconv.FormatInt(ecfrID, 10)
		if first, dup := seen[ecfrID]; dup {
			return nil, &RecordError{
				Entity: "correction",
				Index:  i,
				Key:    key,
				Reason: fmt.Sprintf("duplicate id, first seen at record %d", first),
			}
		}
		seen[ecfrID] = i

		sum, _ := record[checksum.FieldChecksum].(string)
		if sum == "" {
			return nil, &RecordError{Entity: "correction", Index: i, Key: key, Reason: "missing checksum"}
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			return nil, &RecordError{Entity: "correction", Index: i, Key: key, Reason: "cannot encode record", Err: err}
		}

		id := int64(i + 1)
		res.Raw = append(res.Raw, data.CorrectionRaw{
			Id:       id,
			EcfrId:   ecfrID,
			Data:     string(encoded),
			Checksum: sum,
		})

		row := EnrichCorrection(record)
		row.Id = id
		row.EcfrId = ecfrID
		row.Checksum = sum
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func naturalID(index int, record map[string]any) (int64, error) {
	v, ok := record["id"]
	if !ok || v == nil {
		return 0, &RecordError{Entity: "correction", Index: index, Reason: "missing id"}
	}
	id, ok := optionalInt(v)
	if !ok || id == nil {
		return 0, &RecordError{Entity: "correction", Index: index, Reason: fmt.Sprintf("id %v is not an integer", v)}
	}
	return *id, nil
}
