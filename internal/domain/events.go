package domain

import "encoding/json"

// Live-channel event names.
const (
	EventJoinPoll     = "join-poll"
	EventLeavePoll    = "leave-poll"
	EventVote         = "vote"
	EventPollUpdate   = "poll-update"
	EventVoteRejected = "vote-rejected"
)

// Envelope is the JSON frame exchanged on the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// VoteRequest is the payload of a "vote" event.
type VoteRequest struct {
	PollID string `json:"pollId"`
	Option string `json:"option"`
}

// VoteRejection is the payload of a "vote-rejected" event.
type VoteRejection struct {
	PollID string `json:"pollId"`
	Option string `json:"option"`
	Reason string `json:"reason"`
}

// EncodeEvent marshals an outbound event frame.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
