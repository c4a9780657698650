package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/adapter/metrics"
	"github.com/pscheid92/pollpulse/internal/domain"
)

// Engine is the only component that references both the poll store and the
// subscription registry. It owns the vote-then-broadcast sequence.
type Engine struct {
	store            domain.PollStore
	registry         domain.SubscriptionRegistry
	clock            clockwork.Clock
	voteMetrics      *metrics.VoteMetrics
	rejectionNotices bool
}

// NewEngine creates the engine. voteMetrics may be nil. When rejectionNotices
// is set, rejected votes are answered privately with a vote-rejected event.
func NewEngine(store domain.PollStore, registry domain.SubscriptionRegistry, clock clockwork.Clock, voteMetrics *metrics.VoteMetrics, rejectionNotices bool) *Engine {
	return &Engine{
		store:            store,
		registry:         registry,
		clock:            clock,
		voteMetrics:      voteMetrics,
		rejectionNotices: rejectionNotices,
	}
}

// CreatePoll validates and stores a new poll.
func (e *Engine) CreatePoll(ctx context.Context, question string, options []string) (domain.Poll, error) {
	poll, err := e.store.CreatePoll(question, options)
	if err != nil {
		slog.DebugContext(ctx, "Poll creation rejected", "error", err)
		return domain.Poll{}, err
	}

	if e.voteMetrics != nil {
		e.voteMetrics.PollsCreated.Inc()
	}
	slog.InfoContext(ctx, "Poll created", "poll_id", poll.ID, "options", len(poll.Options))
	return poll, nil
}

// GetPoll returns a snapshot of the poll.
func (e *Engine) GetPoll(_ context.Context, pollID string) (domain.Poll, error) {
	return e.store.GetPoll(pollID)
}

// PollCount returns the number of stored polls.
func (e *Engine) PollCount() int {
	return e.store.Count()
}

// Join subscribes sub to pollID and privately sends it the current tally.
// Joins for unknown or full polls are ignored; the return value reports
// whether the connection was subscribed.
//
// Subscribing and queueing the snapshot happen under the poll lock, so the
// snapshot is ordered before every later update and includes every earlier one.
func (e *Engine) Join(ctx context.Context, sub domain.Subscriber, pollID string) bool {
	var subscribeErr error
	err := e.store.WithPoll(pollID, func(poll domain.Poll) {
		if subscribeErr = e.registry.Subscribe(sub, pollID); subscribeErr != nil {
			return
		}
		payload, err := domain.EncodeEvent(domain.EventPollUpdate, poll.Tally)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to encode poll snapshot", "poll_id", pollID, "error", err)
			return
		}
		if !e.registry.Send(sub.ID(), payload) {
			slog.DebugContext(ctx, "Initial snapshot not delivered", "poll_id", pollID)
		}
	})
	if err != nil {
		slog.DebugContext(ctx, "Ignoring join for unknown poll", "poll_id", pollID)
		e.recordJoin(metrics.JoinRejectedNotFound)
		return false
	}
	if subscribeErr != nil {
		slog.DebugContext(ctx, "Join rejected", "poll_id", pollID, "error", subscribeErr)
		e.recordJoin(metrics.JoinRejectedFull)
		return false
	}
	e.recordJoin(metrics.JoinAccepted)

	slog.DebugContext(ctx, "Connection joined poll", "poll_id", pollID, "subscribers", e.registry.SubscriberCount(pollID))
	return true
}

// HandleVote records a vote and broadcasts the updated tally to every
// subscriber of the poll. Rejected votes change nothing and broadcast nothing;
// the voter need not be subscribed to the poll it votes on.
func (e *Engine) HandleVote(ctx context.Context, voter domain.Subscriber, pollID, option string) error {
	start := e.clock.Now()

	// Broadcast under the poll lock: subscribers then receive updates in
	// increment order and never see the tally go backwards.
	delivered := 0
	_, err := e.store.RecordVoteThen(pollID, option, func(tally domain.Tally) {
		payload, err := domain.EncodeEvent(domain.EventPollUpdate, tally)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to encode poll update", "poll_id", pollID, "error", err)
			return
		}
		delivered = e.registry.Broadcast(pollID, payload)
	})
	if err != nil {
		e.recordVote(voteResult(err), start)
		if e.rejectionNotices {
			e.sendRejection(ctx, voter, pollID, option, err)
		}
		return err
	}

	e.recordVote(metrics.VoteAccepted, start)
	slog.DebugContext(ctx, "Vote accepted", "poll_id", pollID, "option", option, "delivered", delivered)
	return nil
}

// Leave drops a single poll membership; unknown polls are a no-op.
func (e *Engine) Leave(ctx context.Context, connID domain.ConnectionID, pollID string) {
	e.registry.Unsubscribe(connID, pollID)
	slog.DebugContext(ctx, "Connection left poll", "poll_id", pollID)
}

// Disconnect removes every subscription held by the connection.
func (e *Engine) Disconnect(ctx context.Context, connID domain.ConnectionID) {
	left := e.registry.UnsubscribeAll(connID)
	if left > 0 {
		slog.DebugContext(ctx, "Connection left polls", "polls", left)
	}
}

func (e *Engine) sendRejection(ctx context.Context, voter domain.Subscriber, pollID, option string, cause error) {
	payload, err := domain.EncodeEvent(domain.EventVoteRejected, domain.VoteRejection{
		PollID: pollID,
		Option: option,
		Reason: rejectionReason(cause),
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to encode vote rejection", "poll_id", pollID, "error", err)
		return
	}
	if !voter.Send(payload) {
		slog.DebugContext(ctx, "Vote rejection not delivered", "poll_id", pollID)
	}
}

func (e *Engine) recordVote(result string, start time.Time) {
	if e.voteMetrics == nil {
		return
	}
	e.voteMetrics.VotesProcessed.WithLabelValues(result).Inc()
	e.voteMetrics.ProcessingDuration.Observe(e.clock.Since(start).Seconds())
}

func (e *Engine) recordJoin(result string) {
	if e.voteMetrics != nil {
		e.voteMetrics.JoinsTotal.WithLabelValues(result).Inc()
	}
}

func voteResult(err error) string {
	if errors.Is(err, domain.ErrPollNotFound) {
		return metrics.VoteRejectedNotFound
	}
	return metrics.VoteRejectedInvalidOption
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrPollNotFound):
		return "poll not found"
	case errors.Is(err, domain.ErrInvalidOption):
		return "invalid option"
	default:
		return "rejected"
	}
}
