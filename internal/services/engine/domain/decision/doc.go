// Package decision separates what a pending decision is from who answers it.
//
// A Choice describes the decision and always carries a default answer. A
// DecisionMaker answers it: a human seat, a network proxy, a seeded random
// chooser or the search driver. Enumerators is the explicit table that lets
// non-interactive makers list the candidate answers of each choice kind.
package decision
