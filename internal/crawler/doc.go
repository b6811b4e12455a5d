// Package crawler implements the incremental crawl-and-deduplicate engine: the
// page-by-page Driver (full and incremental modes), the deduplicating Writer, and the
// Service that binds them to a record store and serializes crawls per source. The
// Service commits each page before the Driver fetches the next one.
//
// Fetchers and extractors live in sibling packages and are plugged in through the
// Fetcher and Extractor ports declared here.
package crawler
