package core

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestValidateCatalogItem(t *testing.T) {
	tests := []struct {
		name    string
		item    *CatalogItem
		wantErr error
	}{
		{
			name:    "valid item",
			item:    &CatalogItem{ID: "doc-1", Title: "Intro", UpdatedAt: 1700000000},
			wantErr: nil,
		},
		{
			name:    "valid item without title or path",
			item:    &CatalogItem{ID: "doc-2"},
			wantErr: nil,
		},
		{
			name:    "nil item",
			item:    nil,
			wantErr: ErrInvalidCatalogItem,
		},
		{
			name:    "empty id",
			item:    &CatalogItem{Title: "Intro"},
			wantErr: ErrEmptyID,
		},
		{
			name:    "negative timestamp",
			item:    &CatalogItem{ID: "doc-3", UpdatedAt: -1},
			wantErr: ErrInvalidTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCatalogItem(tt.item)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateCatalogItem() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCatalogItem() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidCatalogItem) {
				t.Errorf("ValidateCatalogItem() error should wrap ErrInvalidCatalogItem, got %v", err)
			}
		})
	}
}

func TestValidateChunk(t *testing.T) {
	validID := uuid.NewString()

	tests := []struct {
		name    string
		chunk   *TextChunk
		wantErr error
	}{
		{
			name:    "valid chunk",
			chunk:   &TextChunk{ID: validID, Content: "hello", DocumentID: "doc-1"},
			wantErr: nil,
		},
		{
			name:    "nil chunk",
			chunk:   nil,
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "non uuid id",
			chunk:   &TextChunk{ID: "doc-1:0", Content: "hello", DocumentID: "doc-1"},
			wantErr: ErrInvalidChunk,
		},
		{
			name:    "empty content",
			chunk:   &TextChunk{ID: validID, DocumentID: "doc-1"},
			wantErr: ErrEmptyContent,
		},
		{
			name:    "empty document id",
			chunk:   &TextChunk{ID: validID, Content: "hello"},
			wantErr: ErrEmptyID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChunk(tt.chunk)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateChunk() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateChunk() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSyncMode(t *testing.T) {
	if err := ValidateSyncMode(SyncModeFull); err != nil {
		t.Errorf("ValidateSyncMode(full) unexpected error = %v", err)
	}
	if err := ValidateSyncMode(SyncModeIncremental); err != nil {
		t.Errorf("ValidateSyncMode(incremental) unexpected error = %v", err)
	}
	if err := ValidateSyncMode("partial"); !errors.Is(err, ErrInvalidSyncMode) {
		t.Errorf("ValidateSyncMode(partial) error = %v, want %v", err, ErrInvalidSyncMode)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", ErrTransientFetch, true},
		{"embedding", ErrEmbeddingBackend, true},
		{"index", ErrIndex, true},
		{"parse", ErrParse, false},
		{"wrapped parse", errors.Join(errors.New("zone 3"), ErrParse), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
