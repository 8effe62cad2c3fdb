// Package state holds the client's copy of the user's mutable state and the
// sync settings that travel with it.
//
// State is a shared handle: every consumer holds the same *State and the
// engine only ever mutates it in place, so holders observe updates without
// re-fetching a reference. Changes are announced to subscribers through
// Subscribe.
//
// Settings is the persisted form of the engine's bookkeeping (queued and
// sent operations, connectivity, credentials). Persister writes both
// documents into a store.KV under two independent keys.
package state
