// Package entity holds the merge-based store of everything the bridge
// knows about its Home Assistant entities.
//
// Each Record carries the vendor identity of the entity (raw device id and
// sku, fixed at creation), its discovery definitions, availability and a
// set of independently mergeable state blocks (light, switch, sensor,
// meta, service). Updates are partial: Store.Upsert deep-merges a Patch
// into the existing record, so a refresh that only knows the brightness
// never erases the colour a command set a moment earlier.
//
// The store is safe for concurrent use. Get returns copies; callers may
// modify them freely without affecting stored state.
package entity
