package badger

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/poiesic/ragsync/core"
	"github.com/poiesic/ragsync/storage"
)

// Key prefixes for different data types
const (
	docRecordPrefix  = "docrec"
	jobRecordPrefix  = "jobrec"
	jobIDSeq         = "jobseq"
	jobActiveKey     = "jobactive"
	checkpointPrefix = "chkpt"
	pointPrefix      = "vecpt"
	pointDocPrefix   = "vecdoc"
	pointSizeKey     = "vecmeta:size"
)

// validateSourceType rejects source types that would break prefix scans.
func validateSourceType(sourceType string) error {
	if sourceType == "" || strings.Contains(sourceType, ":") {
		return fmt.Errorf("%w: %q", storage.ErrInvalidSourceType, sourceType)
	}
	return nil
}

// makeDocumentKey generates a key for an ingested document.
// Format: prefix:sourceType:sourceID
func makeDocumentKey(sourceType, sourceID string) []byte {
	return []byte(docRecordPrefix + ":" + sourceType + ":" + sourceID)
}

// makeDocumentTypePrefix generates the scan prefix for one source type.
func makeDocumentTypePrefix(sourceType string) []byte {
	return []byte(docRecordPrefix + ":" + sourceType + ":")
}

// makeJobKey generates a key for a sync job.
// Format: prefix:id, with the ID in BigEndian order so keys sort by ID.
func makeJobKey(id core.ID) []byte {
	prefix := []byte(jobRecordPrefix + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(checkpointPrefix + ":" + processorType)
}

// makePointKey generates a key for a vector point.
func makePointKey(id string) []byte {
	return []byte(pointPrefix + ":" + id)
}

// makePointDocKey generates a composite key for the document index.
// Format: prefix:documentID\x00pointID
func makePointDocKey(documentID, pointID string) []byte {
	return []byte(pointDocPrefix + ":" + documentID + "\x00" + pointID)
}

// makePartialPointDocKey generates the scan prefix for one document's points.
func makePartialPointDocKey(documentID string) []byte {
	return []byte(pointDocPrefix + ":" + documentID + "\x00")
}
