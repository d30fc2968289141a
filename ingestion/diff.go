package ingestion

import "github.com/poiesic/ragsync/core"

// Pending returns the catalog items that need ingesting: those absent from
// known, and those whose known timestamp is strictly older than the
// catalog's. Equal timestamps count as synced. Catalog order is preserved.
func Pending(catalog []core.CatalogItem, known map[string]int64) []core.CatalogItem {
	pending := make([]core.CatalogItem, 0, len(catalog))
	for _, item := range catalog {
		updatedAt, ok := known[item.ID]
		if !ok || updatedAt < item.UpdatedAt {
			pending = append(pending, item)
		}
	}
	return pending
}
