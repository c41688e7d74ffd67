package data

// RawRecord is one decoded object from a source document. Numbers keep their
// source literal as json.Number so re-encoding never changes them.
type RawRecord map[string]any

// AgencyRaw is the verbatim agency record as stored in agencies_raw.
// Data holds the record JSON including its checksum (and, for a parent, its children).
type AgencyRaw struct {
	Id         int64   `json:"id"`
	Slug       string  `json:"slug"`
	Name       string  `json:"name"`
	ShortName  *string `json:"short_name"`
	ParentSlug *string `json:"parent_slug"`
	Data       string  `json:"-"`
	Checksum   string  `json:"checksum"`
}

// AgencyRow is a flattened agency in agencies_parsed.
type AgencyRow struct {
	Id                int64   `json:"id"`
	Slug              string  `json:"slug"`
	Name              string  `json:"name"`
	ShortName         *string `json:"short_name"`
	ParentId          *int64  `json:"parent_id"`
	ParentSlug        *string `json:"parent_slug"`
	CfrReferenceCount int     `json:"cfr_reference_count"`
	ChildCount        int     `json:"child_count"`
	Checksum          string  `json:"checksum"`
}

// IsTopLevel reports whether the agency has no parent.
func (a *AgencyRow) IsTopLevel() bool {
	return a.ParentSlug == nil
}

// CfrReference is one (agency, title, chapter, subtitle, part) tuple of the
// cfr_references join table.
type CfrReference struct {
	AgencySlug string  `json:"agency_slug"`
	Title      *int64  `json:"title"`
	Chapter    *string `json:"chapter"`
	Subtitle   *string `json:"subtitle"`
	Part       *string `json:"part"`
}
