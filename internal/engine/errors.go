package engine

import "errors"

var (
	// ErrInvalidReference is returned when an entry names a journal entry or
	// file that does not exist.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrDuplicateContent is returned when a config archive would store
	// bytes already archived for the same logical file.
	ErrDuplicateContent = errors.New("duplicate content")

	// ErrAppendOnly is returned when an append would land on an entry ID
	// that already exists in the day file.
	ErrAppendOnly = errors.New("append-only violation")

	// ErrTemplateRequired is returned when templates are mandatory and the
	// append names none.
	ErrTemplateRequired = errors.New("template required")

	// ErrTemplateNotFound is returned when the named template is not
	// registered.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrResourceNotFound is returned when an operation targets a file that
	// does not exist (config to archive, log to preserve, archive to
	// activate).
	ErrResourceNotFound = errors.New("resource not found")
)
