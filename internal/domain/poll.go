package domain

import (
	"maps"
	"slices"
	"time"
)

// MinOptions is the smallest number of options a poll may offer.
const MinOptions = 2

// Tally maps each option of a poll to its vote count.
type Tally map[string]int

// Clone returns an independent copy of the tally.
func (t Tally) Clone() Tally {
	return maps.Clone(t)
}

// Total returns the sum of all counts.
func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Poll is a question with a fixed set of options and their running tally.
// Values handed out by the store are snapshots; mutating them has no effect
// on the stored poll.
type Poll struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Options   []string  `json:"options"`
	Tally     Tally     `json:"tally"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the poll.
func (p Poll) Clone() Poll {
	p.Options = slices.Clone(p.Options)
	p.Tally = p.Tally.Clone()
	return p
}

// HasOption reports whether option is one of the poll's options.
func (p Poll) HasOption(option string) bool {
	return slices.Contains(p.Options, option)
}
