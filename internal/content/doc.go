// Package content manages the lifecycle of bundle content.
//
// Content is a filesystem holding bundles.json and the CSS/JS resources it
// references. It comes from the embedded seed, a local directory, or a
// tar.gz release in S3 whose SHA-256 is published in an SSM parameter.
//
// The core components are:
//   - [Loader]: fetches, verifies and extracts releases from S3/SSM
//   - [Prepare]: sanity checks a snapshot and compiles its bundle catalog
//   - [Manager]: stores the active snapshot using atomic.Pointer for lock-free reads
//   - [Watcher]: polls SSM for hash changes and hot-swaps releases into the Manager
//
// Release extraction enforces strict limits: maximum compressed size,
// per-file size, total extracted size, and path traversal checks.
package content
