package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for locally stored entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// CatalogItem is one entry of the remote catalog listing.
type CatalogItem struct {
	ID           string
	Title        string
	UpdatedAt    int64 // Unix seconds
	PathSegments []string
}

// IngestedRecord is the locally known state of a previously ingested item.
// It is only used for diffing against the remote catalog.
type IngestedRecord struct {
	ID        string
	Title     string
	UpdatedAt int64 // Unix seconds
}

// OpKind identifies how a rich text op is rendered.
type OpKind int

const (
	// OpPlain is unformatted text.
	OpPlain OpKind = iota
	// OpHeading is a heading line; Level holds 1 or 2.
	OpHeading
	// OpBlockquote is a quoted line.
	OpBlockquote
	// OpBulletList is a bullet list entry.
	OpBulletList
	// OpHyperlink is a link whose target was decoded from the hyperlink attribute.
	OpHyperlink
	// OpAutoURL is a link detected by the source editor.
	OpAutoURL
	// OpBold is strong text.
	OpBold
	// OpImage marks an embedded image. It carries no renderable text.
	OpImage
)

// String returns a short name for the op kind.
func (k OpKind) String() string {
	switch k {
	case OpPlain:
		return "plain"
	case OpHeading:
		return "heading"
	case OpBlockquote:
		return "blockquote"
	case OpBulletList:
		return "bullet"
	case OpHyperlink:
		return "hyperlink"
	case OpAutoURL:
		return "autoUrl"
	case OpBold:
		return "bold"
	case OpImage:
		return "image"
	default:
		return "unknown"
	}
}

// Op is a single insert operation of a rich document.
// Exactly one Kind applies per op; the attribute bag of the wire format is
// resolved into Kind by the parser.
type Op struct {
	Kind  OpKind
	Text  string
	Level int    // heading level, set for OpHeading
	Href  string // link target, set for OpHyperlink and OpAutoURL
	// Raw is true when the wire op carried no attributes at all.
	Raw bool
}

// Zone is an ordered run of ops under one zone identifier.
type Zone struct {
	ID  string
	Ops []Op
}

// RichDocument is a structured rich-text document made of zones.
// Zones keep the order in which the source delivered them.
type RichDocument struct {
	Zones []Zone
}

// TextChunk is the atomic unit written to the vector index.
type TextChunk struct {
	ID         string // UUID
	Content    string
	DocumentID string
	CategoryID string // optional
	Title      string // optional, used for provenance
}

// RetrievedChunk is a chunk returned by vector search together with its score.
type RetrievedChunk struct {
	TextChunk
	Score float32
}

// SyncMode selects how the pending set of a sync run is computed.
type SyncMode string

const (
	// SyncModeIncremental syncs only items that are new or updated remotely.
	SyncModeIncremental SyncMode = "incremental"
	// SyncModeFull re-syncs the whole catalog.
	SyncModeFull SyncMode = "full"
)

// SyncStatus is the lifecycle state of a sync job.
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
	SyncStatusCancelled SyncStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusFailed || s == SyncStatusCancelled
}

// SyncJob tracks the progress of one sync run.
type SyncJob struct {
	Id             ID
	Mode           SyncMode
	Status         SyncStatus
	ItemsTotal     int
	ItemsProcessed int
	Error          string
	StartedAt      time.Time
	CompletedAt    time.Time
	UpdatedAt      time.Time
}
