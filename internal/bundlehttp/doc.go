// Package bundlehttp serves built bundles at their public URLs.
//
// Each request derives the bundle's cache variance from the request itself.
// Requests for a stale version or a key other than the derived one are
// redirected to the canonical URL, so a cached URL never serves bytes built
// for a different variant.
package bundlehttp
