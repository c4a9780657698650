package poll

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/pollpulse/internal/domain"
)

// DefaultMaxOptions caps the option list when no explicit limit is configured.
const DefaultMaxOptions = 20

type entry struct {
	mu   sync.Mutex
	poll domain.Poll
}

// Store is the in-memory PollStore. Polls live for the lifetime of the process.
type Store struct {
	clock      clockwork.Clock
	maxOptions int
	newID      func() string

	mu    sync.RWMutex
	polls map[string]*entry
}

func NewStore(clock clockwork.Clock, maxOptions int) *Store {
	if maxOptions < domain.MinOptions {
		maxOptions = DefaultMaxOptions
	}
	return &Store{
		clock:      clock,
		maxOptions: maxOptions,
		newID:      func() string { return uuid.NewString() },
		polls:      make(map[string]*entry),
	}
}

// CreatePoll validates the input and stores a new poll with all counts at zero.
func (s *Store) CreatePoll(question string, options []string) (domain.Poll, error) {
	question = strings.TrimSpace(question)
	cleaned, err := s.validate(question, options)
	if err != nil {
		return domain.Poll{}, err
	}

	tally := make(domain.Tally, len(cleaned))
	for _, opt := range cleaned {
		tally[opt] = 0
	}

	p := domain.Poll{
		ID:        s.newID(),
		Question:  question,
		Options:   cleaned,
		Tally:     tally,
		CreatedAt: s.clock.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.polls[p.ID]; exists {
		return domain.Poll{}, fmt.Errorf("poll id collision on %s", p.ID)
	}
	s.polls[p.ID] = &entry{poll: p}

	return p.Clone(), nil
}

// GetPoll returns a snapshot of the poll.
func (s *Store) GetPoll(pollID string) (domain.Poll, error) {
	e, ok := s.lookup(pollID)
	if !ok {
		return domain.Poll{}, domain.ErrPollNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poll.Clone(), nil
}

// WithPoll calls fn with a snapshot of the poll while the poll is locked.
// Votes on the poll wait until fn returns.
func (s *Store) WithPoll(pollID string, fn func(domain.Poll)) error {
	e, ok := s.lookup(pollID)
	if !ok {
		return domain.ErrPollNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.poll.Clone())
	return nil
}

// RecordVote increments the option's count by one and returns the full tally
// as it stood right after the increment.
func (s *Store) RecordVote(pollID, option string) (domain.Tally, error) {
	return s.RecordVoteThen(pollID, option, nil)
}

// RecordVoteThen is RecordVote with a hook: then runs with the new tally
// before the poll is unlocked, so hooks for one poll run in increment order.
// then must not block.
func (s *Store) RecordVoteThen(pollID, option string, then func(domain.Tally)) (domain.Tally, error) {
	e, ok := s.lookup(pollID)
	if !ok {
		return nil, domain.ErrPollNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.poll.Tally[option]; !ok {
		return nil, domain.ErrInvalidOption
	}
	e.poll.Tally[option]++

	tally := e.poll.Tally.Clone()
	if then != nil {
		then(tally.Clone())
	}
	return tally, nil
}

// Count returns the number of stored polls.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.polls)
}

func (s *Store) lookup(pollID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.polls[pollID]
	return e, ok
}

func (s *Store) validate(question string, options []string) ([]string, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", domain.ErrValidation)
	}
	if len(options) < domain.MinOptions {
		return nil, fmt.Errorf("%w: at least %d options are required", domain.ErrValidation, domain.MinOptions)
	}
	if len(options) > s.maxOptions {
		return nil, fmt.Errorf("%w: at most %d options are allowed", domain.ErrValidation, s.maxOptions)
	}

	cleaned := make([]string, 0, len(options))
	seen := make(map[string]struct{}, len(options))
	for i, opt := range options {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			return nil, fmt.Errorf("%w: option %d is empty", domain.ErrValidation, i+1)
		}
		if _, dup := seen[opt]; dup {
			return nil, fmt.Errorf("%w: duplicate option %q", domain.ErrValidation, opt)
		}
		seen[opt] = struct{}{}
		cleaned = append(cleaned, opt)
	}

	return cleaned, nil
}
