package storage

import (
	"time"

	"github.com/poiesic/ragsync/core"
)

// IngestedDocument is the stored form of a successfully ingested catalog item.
type IngestedDocument struct {
	SourceID    string
	SourceType  string
	Title       string
	Path        []string
	SourceURL   string
	UpdatedAt   int64 // seconds, as reported by the catalog
	Content     string
	ContentHash core.ID
	IngestedAt  time.Time
}

// Record returns the diffing view of the document.
func (d *IngestedDocument) Record() core.IngestedRecord {
	return core.IngestedRecord{
		ID:        d.SourceID,
		Title:     d.Title,
		UpdatedAt: d.UpdatedAt,
	}
}

// Checkpoint marks how far a resumable batch operation has progressed.
type Checkpoint struct {
	ProcessorType string
	LastKey       string
	Processed     int
	UpdatedAt     time.Time
}
