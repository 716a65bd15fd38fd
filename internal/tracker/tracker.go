// Package tracker defines the issue tracker contract shared by the
// adapters.
package tracker

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/rpggio/qasync/internal/domain/record"
)

var (
	// ErrTransient marks a tracker failure worth retrying.
	ErrTransient = errors.New("transient tracker error")
	// ErrNotFound is returned for an unknown issue or tracker project.
	ErrNotFound = errors.New("tracker object not found")
)

// CreateRequest describes a new issue.
type CreateRequest struct {
	ProjectID string
	Title     string
	Body      string
	Category  record.Category
	Labels    []string
}

// IssueRef points at an issue. Score is set by Search, in [0, 1].
// CreatedAt is zero when the tracker does not report it.
type IssueRef struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url,omitempty"`
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Tracker files and finds issues.
type Tracker interface {
	CreateIssue(ctx context.Context, req CreateRequest) (*IssueRef, error)
	AddComment(ctx context.Context, issueID, body string) (string, error)
	// Search returns candidate issues in projectID, best match first.
	Search(ctx context.Context, projectID, text string, limit int) ([]IssueRef, error)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// Similarity scores two texts by the Dice coefficient of their character
// bigrams after normalisation. Whitespace is ignored so spacing variants of
// Korean phrases compare equal.
func Similarity(a, b string) float64 {
	ab := bigrams(a)
	bb := bigrams(b)
	if len(ab) == 0 && len(bb) == 0 {
		if squash(a) == squash(b) && squash(a) != "" {
			return 1
		}
		return 0
	}
	if len(ab) == 0 || len(bb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ab))
	for _, g := range ab {
		counts[g]++
	}
	shared := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ab)+len(bb))
}

// SameTitle reports whether two titles are equal after normalisation.
func SameTitle(a, b string) bool {
	return squash(a) == squash(b)
}

func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(s))), "")
}

func bigrams(s string) []string {
	r := []rune(squash(s))
	if len(r) < 2 {
		return nil
	}
	out := make([]string, 0, len(r)-1)
	for i := 0; i+1 < len(r); i++ {
		out = append(out, string(r[i:i+2]))
	}
	return out
}
