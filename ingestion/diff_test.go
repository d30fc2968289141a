package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/ragsync/core"
)

func TestPending(t *testing.T) {
	catalog := []core.CatalogItem{
		{ID: "new", UpdatedAt: 10},
		{ID: "newer", UpdatedAt: 20},
		{ID: "same", UpdatedAt: 30},
		{ID: "older", UpdatedAt: 40},
	}
	known := map[string]int64{
		"newer":   19,
		"same":    30,
		"older":   41,
		"dropped": 5,
	}

	pending := Pending(catalog, known)

	ids := make([]string, len(pending))
	for i, item := range pending {
		ids[i] = item.ID
	}
	assert.Equal(t, []string{"new", "newer"}, ids)
}

func TestPending_EmptyKnownReturnsCatalog(t *testing.T) {
	catalog := []core.CatalogItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.Equal(t, catalog, Pending(catalog, nil))
}

func TestPending_Subset(t *testing.T) {
	catalog := make([]core.CatalogItem, 0, 50)
	known := make(map[string]int64)
	for i := 0; i < 50; i++ {
		item := core.CatalogItem{ID: string(rune('A' + i)), UpdatedAt: int64(i)}
		catalog = append(catalog, item)
		if i%3 == 0 {
			known[item.ID] = int64(i)
		}
	}

	pending := Pending(catalog, known)

	// Every pending item comes from the catalog, in catalog order, and is
	// either unknown or strictly newer than its stored timestamp.
	j := 0
	for _, item := range pending {
		for catalog[j].ID != item.ID {
			j++
		}
		stored, ok := known[item.ID]
		assert.True(t, !ok || stored < item.UpdatedAt, "item %s should not be pending", item.ID)
	}
	assert.Len(t, pending, 50-17)
}
