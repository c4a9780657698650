// Package app provides the vote ingestion and broadcast engine.
//
// Orchestrates use cases: poll creation and lookup for the HTTP gateway, joining
// a poll's live room, vote ingestion with fan-out, and connection teardown.
// Depends on domain interfaces, not concrete implementations.
package app
