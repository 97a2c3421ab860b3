// Package state keeps short-lived per-user conversation sessions in memory.
// Values are opaque to the store; callers own their meaning.
package state
