// Package checkpoint persists crawl state and the append-only record and
// error logs. The state document is always replaced wholesale so a crash
// leaves either the previous or the new checkpoint readable.
package checkpoint
