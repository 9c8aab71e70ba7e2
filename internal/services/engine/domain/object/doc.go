// Package object holds the mutable game-state replica the engine mutates.
//
// The model is deliberately thin: objects carry a kind and a flat property
// map. Concrete rule sets decide what the properties mean. Every change a rule
// makes must go through a command so the journal can revert it; the mutators
// here exist for commands, not for rule code.
package object
