// Package command defines the reversible mutation units every state change is
// expressed as.
//
// A command is applied to an object.Manager and can be reverted immediately
// afterwards, restoring the manager to a structurally equal state. Commands
// capture everything revert needs when they are built, so a command must be
// constructed against the state it will be applied to.
//
// The package also carries the per-observer redaction contract used by
// replication and a codec registry used by history and network transport.
package command
