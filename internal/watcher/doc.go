// Package watcher detects filesystem changes under the indexed roots
// and feeds them to the retrieval service as targeted ingest/delete
// work.
//
// A hybrid strategy is used: fsnotify where the platform supports it,
// with a polling scanner as the fallback for network mounts and
// container volumes. Raw events are debounced so editor save storms
// and bulk copies coalesce into one batch per file, and filtered
// through the indexing policy so excluded trees never produce work.
package watcher
