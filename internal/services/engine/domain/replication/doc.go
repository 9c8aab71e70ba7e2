// Package replication forwards committed commands to observers, each seeing
// only what its visibility allows.
//
// A Synchronizer listens to a journal for one observer. It redacts every
// committed batch, drops batches that end up empty, and brings objects that
// became visible fully up to date with one synthetic Reveal appended to the
// next flush. Visibility is decided by the game layer; the synchronizer only
// consumes it and reconciles the net state at flush time.
package replication
