package record

import "strings"

// ValidateCommitInput validates fields required to commit a record.
func ValidateCommitInput(req CommitRequest) error {
	if strings.TrimSpace(req.Project) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.EventID) == "" {
		return ErrInvalidInput
	}
	if strings.TrimSpace(req.IssueID) == "" {
		return ErrInvalidInput
	}
	if !req.Category.Valid() {
		return ErrInvalidInput
	}
	return nil
}
