// Package cryptoutil holds the hashing and signature checks used when
// loading content releases: constant-time digest comparison, SHA-256
// digest parsing, and KMS-backed detached signature verification.
package cryptoutil
