// Package sequencer interprets rules as an explicit stack of steps that can
// suspend on a choice and resume later.
//
// The sequencer is cooperative and non-reentrant. Each tick invokes the top
// step. A step that continues is popped and its continuation and scheduled
// steps are pushed. A step that asks a choice stays on top and is invoked
// again with the answer. Because suspension is plain data, a sequencer can be
// resumed on any goroutine, forked for search, or encoded and restored.
//
// Steps must be immutable values. Anything that changes while rules run
// belongs in the object model and is changed through the journal.
package sequencer
