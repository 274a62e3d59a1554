// Package cryptoutil holds the integrity primitives for content bundles:
// constant-time digest comparison and detached signature checks against an
// AWS KMS asymmetric key, verified locally with the cached public key.
package cryptoutil
