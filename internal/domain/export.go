package domain

import "time"

// ExportFormat is a contact export file format.
type ExportFormat string

const (
	ExportCSV   ExportFormat = "csv"
	ExportVCard ExportFormat = "vcf"
)

// Valid reports whether f is a supported format.
func (f ExportFormat) Valid() bool { return f == ExportCSV || f == ExportVCard }

// ContentType returns the MIME type of f.
func (f ExportFormat) ContentType() string {
	if f == ExportVCard {
		return "text/vcard; charset=utf-8"
	}
	return "text/csv; charset=utf-8"
}

// ExportRecord describes one archived contact export.
type ExportRecord struct {
	Key          string       `json:"key"`
	Format       ExportFormat `json:"format"`
	ContactCount int          `json:"contact_count"`
	SizeBytes    int64        `json:"size_bytes"`
	Location     string       `json:"location"`
	CreatedBy    string       `json:"created_by"`
	CreatedAt    time.Time    `json:"created_at"`
}
