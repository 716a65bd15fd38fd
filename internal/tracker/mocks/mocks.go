package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/rpggio/qasync/internal/tracker"
)

// Tracker is a mock for tracker.Tracker.
type Tracker struct {
	mock.Mock
}

func (m *Tracker) CreateIssue(ctx context.Context, req tracker.CreateRequest) (*tracker.IssueRef, error) {
	args := m.Called(ctx, req)
	if ref, ok := args.Get(0).(*tracker.IssueRef); ok {
		return ref, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Tracker) AddComment(ctx context.Context, issueID, body string) (string, error) {
	args := m.Called(ctx, issueID, body)
	return args.String(0), args.Error(1)
}

func (m *Tracker) Search(ctx context.Context, projectID, text string, limit int) ([]tracker.IssueRef, error) {
	args := m.Called(ctx, projectID, text, limit)
	if refs, ok := args.Get(0).([]tracker.IssueRef); ok {
		return refs, args.Error(1)
	}
	return nil, args.Error(1)
}
