package domain

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

type Poll struct {
	ID              uuid.UUID  `json:"id"`
	Question        string     `json:"question"`
	Options         []Option   `json:"options"`
	CreatorID       uuid.UUID  `json:"creator_id"`
	MultipleAnswers bool       `json:"multiple_answers"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Closed          bool       `json:"closed"`
	Voters          VoterSet   `json:"voters"`
	CreatedAt       time.Time  `json:"created_at"`
}

type Option struct {
	ID    uuid.UUID `json:"id"`
	Text  string    `json:"text"`
	Votes int64     `json:"votes"`
}

// IsClosedAt reports whether the poll stopped accepting votes at t.
func (p *Poll) IsClosedAt(t time.Time) bool {
	return p.ExpiresAt != nil && !t.Before(*p.ExpiresAt)
}

// HasOption reports whether id names one of the poll's options.
func (p *Poll) HasOption(id uuid.UUID) bool {
	for _, opt := range p.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

func (p *Poll) TotalVotes() int64 {
	var total int64
	for _, opt := range p.Options {
		total += opt.Votes
	}
	return total
}

// Clone returns a deep copy that shares no mutable state with p.
func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = slices.Clone(p.Options)
	c.Voters = p.Voters.Clone()
	if p.ExpiresAt != nil {
		t := *p.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

type PollSummary struct {
	ID        uuid.UUID  `json:"id"`
	Question  string     `json:"question"`
	CreatorID uuid.UUID  `json:"creator_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Closed    bool       `json:"closed"`
	CreatedAt time.Time  `json:"created_at"`
}

// VoterSet holds the identifiers of everyone who voted on a poll.
// It encodes to JSON as a sorted array of ids.
type VoterSet map[uuid.UUID]struct{}

func NewVoterSet(ids ...uuid.UUID) VoterSet {
	s := make(VoterSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s VoterSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s VoterSet) Add(id uuid.UUID) {
	s[id] = struct{}{}
}

func (s VoterSet) Len() int {
	return len(s)
}

func (s VoterSet) Clone() VoterSet {
	c := make(VoterSet, len(s))
	for id := range s {
		c[id] = struct{}{}
	}
	return c
}

// IDs returns the members ordered by their string form.
func (s VoterSet) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return ids
}

func (s VoterSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

func (s *VoterSet) UnmarshalJSON(data []byte) error {
	var ids []uuid.UUID
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewVoterSet(ids...)
	return nil
}

// BallotInput is one voter's selection as handed to the store for atomic application.
type BallotInput struct {
	PollID    uuid.UUID
	VoterID   uuid.UUID
	OptionIDs []uuid.UUID
	At        time.Time
}

// TallySnapshot pairs a poll's stored tallies with a recount of its recorded
// ballot selections, both read at the same instant.
type TallySnapshot struct {
	PollID          uuid.UUID
	MultipleAnswers bool
	OptionIDs       []uuid.UUID
	Stored          map[uuid.UUID]int64
	Recounted       map[uuid.UUID]int64
	VoterCount      int
}

// TallyDrift describes a poll whose stored tallies disagree with its recorded ballots.
type TallyDrift struct {
	PollID     uuid.UUID           `json:"poll_id"`
	Stored     map[uuid.UUID]int64 `json:"stored"`
	Recounted  map[uuid.UUID]int64 `json:"recounted"`
	VoterCount int                 `json:"voter_count"`
	Reason     string              `json:"reason"`
}
