// Package broadcast fans novel traffic records out to websocket subscribers.
//
// The Hub owns the subscriber set and one bounded queue per subscriber. A Session pairs a
// subscription with a websocket connection and a single writer goroutine. The Registry is an
// actor (single goroutine + command channel) that owns the set of live sessions.
package broadcast
