// Package journal records committed commands and scopes them into nested
// transactions and groups.
//
// Every state change made by rule logic flows through Journal.Execute. A
// transaction can be rolled back, reverting everything recorded since it
// began in strict reverse order. A group always commits and only batches
// notifications. Listeners hear about each committed top-level operation
// exactly once, as begin, synchronize, end, and never about rolled back work.
//
// Usage defects (mismatched tokens, ending a scope that was never opened,
// executing against a detached journal) fault the journal. A faulted journal
// refuses every later mutation because the stack discipline that makes
// revert safe can no longer be trusted.
package journal
