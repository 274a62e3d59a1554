// Package content owns the site snapshot the public handler serves.
//
// A [Manager] holds the active [Snapshot] behind an atomic pointer so readers
// never lock. Snapshots come from one of three places:
//   - the embedded seed site ([SeedSnapshot]);
//   - a tar.gz bundle in S3 whose sha256 is published in SSM ([Loader]), kept
//     current by a polling [Watcher];
//   - a local export directory ([DirSource]) reloaded on change.
//
// Every snapshot is an in-memory fs.FS. Bundle extraction caps compressed size,
// per-file size and total size, and rejects absolute or escaping paths.
// Candidates are checked with [ValidateSnapshot] before they replace the active one.
package content
