// Package search explores the answers of a pending choice by applying each
// one, scoring the resulting state and rolling it back.
//
// The serial driver works on the sequencer's own journal inside nested
// transactions, so the state after a search is exactly the state before it.
// The parallel driver gives every worker its own cloned replica, journal and
// forked sequencer; no two workers ever touch the same state. Limits are
// checked between candidates, never in the middle of one.
package search
