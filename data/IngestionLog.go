package data

import "time"

const (
	EntityAgencies    = "agencies"
	EntityCorrections = "corrections"
)

// IngestionLogEntry is the provenance record appended once per file load.
type IngestionLogEntry struct {
	LoadId       string    `json:"load_id"`
	Entity       string    `json:"entity"`
	SourceFile   string    `json:"source_file"`
	RecordCount  int       `json:"record_count"`
	FileChecksum string    `json:"file_checksum"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// LoadResult summarises one successful file load.
type LoadResult struct {
	Entry             IngestionLogEntry `json:"entry"`
	Parents           int               `json:"parents,omitempty"`
	Children          int               `json:"children,omitempty"`
	ChecksumsComputed int               `json:"checksums_computed"`
}
