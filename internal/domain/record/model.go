package record

import (
	"fmt"
	"strings"
	"time"
)

// Category is the issue type an event is filed as.
type Category string

const (
	CategoryBug         Category = "bug"
	CategoryDataError   Category = "data_error"
	CategoryImprovement Category = "improvement"
)

// Categories lists every category in classification precedence order.
var Categories = []Category{CategoryBug, CategoryDataError, CategoryImprovement}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryBug, CategoryDataError, CategoryImprovement:
		return true
	}
	return false
}

// ParseCategory parses a category name, accepting "data-error" as an alias.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
	}
	return c, nil
}

// SyncRecord is durable proof that an event became, or was merged into,
// exactly one tracker issue. Records are append-only.
type SyncRecord struct {
	Project     string    `json:"project"`
	EventID     string    `json:"event_id"`
	IssueID     string    `json:"issue_id"`
	Category    Category  `json:"category"`
	Merged      bool      `json:"merged,omitempty"`
	CommentID   string    `json:"comment_id,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
