// Package crawler defines the data model and collaborator contracts shared by
// the festival crawler: frontier entries, the checkpointed crawl state,
// festival and error records, and the fetch/extract/analyze/persist
// interfaces the scheduler drives.
package crawler
