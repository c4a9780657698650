package domain

import "context"

// ConnectionID identifies one live-channel connection for its whole lifetime.
type ConnectionID string

// Subscriber is a live connection that can receive pushed frames.
// Send must not block; it reports false when the frame could not be queued.
type Subscriber interface {
	ID() ConnectionID
	Send(payload []byte) bool
	Close()
}

// PollStore is the authoritative in-memory poll registry.
type PollStore interface {
	CreatePoll(question string, options []string) (Poll, error)
	GetPoll(pollID string) (Poll, error)
	WithPoll(pollID string, fn func(Poll)) error
	RecordVote(pollID, option string) (Tally, error)
	RecordVoteThen(pollID, option string, then func(Tally)) (Tally, error)
	Count() int
}

// SubscriptionRegistry binds connections to polls and fans out frames.
type SubscriptionRegistry interface {
	Subscribe(sub Subscriber, pollID string) error
	Unsubscribe(connID ConnectionID, pollID string)
	UnsubscribeAll(connID ConnectionID) int
	Broadcast(pollID string, payload []byte) int
	Send(connID ConnectionID, payload []byte) bool
	SubscriberCount(pollID string) int
}

// VoteEngine is the contract the live-channel transport drives.
type VoteEngine interface {
	Join(ctx context.Context, sub Subscriber, pollID string) bool
	Leave(ctx context.Context, connID ConnectionID, pollID string)
	HandleVote(ctx context.Context, voter Subscriber, pollID, option string) error
	Disconnect(ctx context.Context, connID ConnectionID)
}
