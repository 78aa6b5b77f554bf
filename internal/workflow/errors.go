package workflow

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
)

// ValidationError carries the inline message shown to the submitter. Nothing
// is written when one is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

const (
	MsgSelectChecklistItem = "Please select a checklist item."
	MsgChecklistDepartment = "This checklist item does not belong to your department."
	MsgCommentRequired     = "Comments are required."
	MsgCommentTooLong      = "Comments cannot exceed 1000 characters."
	MsgContentRequired     = "Summary of accomplishments is required."
	MsgContentTooLong      = "Summary of accomplishments cannot exceed 2000 characters."
	MsgFileRequired        = "A DMAX report document is mandatory."
	MsgFileType            = "Invalid file type. Please upload PDF, Word, or Excel documents."
	MsgFileTooLarge        = "File size exceeds 10MB limit."
	MsgMonth               = "Please select a valid month."
	MsgYear                = "Please select a valid year."
)

func duplicatePeriod(month string, year int) error {
	return invalid("month", fmt.Sprintf("A DMAX report for %s %d has already been submitted.", month, year))
}
