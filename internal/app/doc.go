// Package app runs the poll loop.
//
// The Poller owns the deduplication store: it loads a silent baseline, then on every
// interval fetches the newest page and hands records it has not seen to a publisher.
package app
