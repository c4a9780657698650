// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (poll.go, errors.go, events.go, subscriber.go) hold shared
// types and the consumer-side interfaces. No implementation code - just contracts.
package domain
