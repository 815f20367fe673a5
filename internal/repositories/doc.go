// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations through raw SQL and implements models.Repository for its entity.
// Catalog rows use integer keys; tasks use UUIDs plus a monotonic sequence for human-readable ordering.
//
// Key Implementations:
//   - [TaskRepository] : Persisted work queue with compare-and-set claims, aging-aware dequeue, statistics and cleanup
//   - [LibraryRepository] : Scanned filesystem roots
//   - [ArtistRepository], [AlbumRepository], [TrackRepository] : Catalog records synced from the metadata source
//   - [TrackFileRepository] : Files bound to catalog tracks
//   - [UnmatchedTrackRepository] : Files awaiting association, with a transactional [UnmatchedTrackRepository.Bind]
//   - [PluginRepository] : Installed plugins and their tracked references
//
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
