package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ResultView is the shape of a poll's results handed to one requester.
// Only ResultSummary and CreatorResults implement it.
type ResultView interface {
	Summary() ResultSummary
	resultView()
}

// ResultSummary is what anyone may see: aggregate counts, never identities.
// VoterCount only grows, so it orders two summaries of the same poll.
type ResultSummary struct {
	PollID          uuid.UUID      `json:"poll_id"`
	Question        string         `json:"question"`
	MultipleAnswers bool           `json:"multiple_answers"`
	Options         []OptionResult `json:"options"`
	TotalVotes      int64          `json:"total_votes"`
	VoterCount      int            `json:"voter_count"`
	ExpiresAt       *time.Time     `json:"expires_at,omitempty"`
	Closed          bool           `json:"closed"`
}

func (s ResultSummary) Summary() ResultSummary { return s }
func (ResultSummary) resultView()              {}

// Supersedes reports whether s reflects at least as many ballots as other.
func (s ResultSummary) Supersedes(other ResultSummary) bool {
	return s.VoterCount >= other.VoterCount
}

type OptionResult struct {
	ID         uuid.UUID `json:"id"`
	Text       string    `json:"text"`
	Votes      int64     `json:"votes"`
	Percentage float64   `json:"percentage"`
}

// CreatorResults extends the summary with who voted and the discussion.
type CreatorResults struct {
	ResultSummary
	Voters   []Voter   `json:"voters"`
	Comments []Comment `json:"comments"`
}

type Voter struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// SummarizePoll computes totals and display percentages as of t.
func SummarizePoll(p *Poll, t time.Time) ResultSummary {
	total := p.TotalVotes()
	options := make([]OptionResult, 0, len(p.Options))
	for _, opt := range p.Options {
		options = append(options, OptionResult{
			ID:         opt.ID,
			Text:       opt.Text,
			Votes:      opt.Votes,
			Percentage: Percentage(opt.Votes, total),
		})
	}

	var expiresAt *time.Time
	if p.ExpiresAt != nil {
		e := *p.ExpiresAt
		expiresAt = &e
	}

	return ResultSummary{
		PollID:          p.ID,
		Question:        p.Question,
		MultipleAnswers: p.MultipleAnswers,
		Options:         options,
		TotalVotes:      total,
		VoterCount:      p.Voters.Len(),
		ExpiresAt:       expiresAt,
		Closed:          p.IsClosedAt(t),
	}
}

// Percentage is votes/total*100 rounded to one decimal; zero when nobody voted.
func Percentage(votes, total int64) float64 {
	if total == 0 {
		return 0
	}
	p := float64(votes) / float64(total) * 100
	return math.Round(p*10) / 10
}
