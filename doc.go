// Package tiercache implements a two-tier cache provider: a process-local
// in-memory store combined with a remote Redis-family store, kept coherent
// via keyspace-event subscription. Values are primitives, arrays, or flat
// objects; each operation selects which tier(s) it targets.
//
// Components:
//   - Engine: the public Cache surface (get/set/delete for three shapes,
//     tier levels, TTL, pattern delete, lifecycle).
//   - Local store: in-memory map with per-key expiry timers.
//   - Remote client: single-node or cluster go-redis facade (remote package).
//   - Sync bridge: subscribes to __keyspace@0__ events and applies remote
//     changes to the local tier, serialized per key.
//   - Codec: value <-> Redis wire encoding (codec package).
//
// Tiers:
//
//	LevelLocal  - this process only
//	LevelRemote - the shared backend only
//	LevelBoth   - both, with remote-to-local propagation for the key
//
// Keys are namespaced as "<name>::<key>" unless an operation opts into the
// global namespace. An instance built without a Single or Cluster endpoint
// runs local-only: every operation is restricted to the local tier.
package tiercache
