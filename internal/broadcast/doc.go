// Package broadcast implements the subscription registry: which live connections
// watch which poll, and fan-out of frames to them.
//
// Each poll gets a room with its own lock, so delivery for one poll never waits on
// another. Sends are non-blocking enqueues onto the subscriber; a subscriber whose
// buffer is full is evicted instead of stalling the broadcast.
package broadcast
