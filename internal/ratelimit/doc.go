// Package ratelimit is per-client-IP token bucket middleware.
//
// State is in memory and per process. It blunts a single address hammering the
// edge and keeps the visitor table bounded; it does nothing for distributed
// floods, which are left to upstream filtering.
package ratelimit
