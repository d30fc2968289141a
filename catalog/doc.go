// Package catalog is an HTTP client for the remote document catalog.
//
// The client performs two read operations: FetchCatalog lists every item
// under a root catalog (following pagination), and FetchItem retrieves one
// item with its rich-text content parsed into a core.RichDocument.
//
// The client neither retries nor rate limits. Callers wrap FetchItem in a
// schedule.Scheduler and layer retries on top.
//
// Errors are classified against the core taxonomy:
//   - network failures and non-2xx responses match core.ErrTransientFetch
//   - malformed JSON or rich-text payloads match core.ErrParse
package catalog
