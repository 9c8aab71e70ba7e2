// Package history persists committed top-level commands as a hash-chained
// log so spectators and reconnecting replicas can rebuild a game.
//
// A Recorder listens to a journal and appends one Entry per committed
// operation. Each entry carries the hash of its predecessor; Replay verifies
// the chain before applying anything and reports gaps or tampering as
// HISTORY_SEQUENCE_GAP or HISTORY_CHAIN_BROKEN.
package history
