// Package feedback asks an external service for a short end-of-round message.
package feedback

import (
	"context"
	"errors"
)

// Outcome is how a round ended.
type Outcome string

const (
	Won  Outcome = "won"
	Lost Outcome = "lost"
)

// Fallback messages used whenever the collaborator fails.
const (
	FallbackWon  = "Victory!"
	FallbackLost = "Try again"
)

// ErrEmptyMessage reports a collaborator answer with no text.
var ErrEmptyMessage = errors.New("feedback: empty message")

// Request describes the finished round.
type Request struct {
	Outcome Outcome `json:"outcome"`
	Score   int     `json:"score"`
	Target  int     `json:"target"`
	Prompt  string  `json:"prompt,omitempty"`
}

// Collaborator produces a message for a finished round.
type Collaborator interface {
	RequestFeedback(ctx context.Context, req Request) (string, error)
}

// Fallback returns the canned message for an outcome.
func Fallback(o Outcome) string {
	if o == Won {
		return FallbackWon
	}
	return FallbackLost
}

// Resolve calls c and substitutes the fallback message on any failure. The
// returned error is the collaborator's, for logging only; the message is
// always usable.
func Resolve(ctx context.Context, c Collaborator, req Request) (string, error) {
	if c == nil {
		return Fallback(req.Outcome), nil
	}
	msg, err := c.RequestFeedback(ctx, req)
	if err == nil && msg == "" {
		err = ErrEmptyMessage
	}
	if err != nil {
		return Fallback(req.Outcome), err
	}
	return msg, nil
}

// Static always answers with the fallback messages.
type Static struct{}

func (Static) RequestFeedback(_ context.Context, req Request) (string, error) {
	return Fallback(req.Outcome), nil
}
