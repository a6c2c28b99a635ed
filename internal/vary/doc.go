// Package vary derives cache variance for resource bundles.
//
// A [Provider] maps a read-only request [Context] and the bundle it is
// registered with to a [Result]: a variance key that partitions the bundle
// cache, the provider's policy for exposing that key in public URLs, and
// params for the processing pipeline.
//
// Providers are created from the bundle manifest through a [Registry] and
// pinned to exactly one bundle with [Bound]. Built-ins:
//   - "none": single variant
//   - "language": session/query/cookie/Accept-Language matched against a supported list
//   - "context": any single context value, optionally restricted to an allowed set
package vary
