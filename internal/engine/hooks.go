package engine

import "github.com/calvinalkan/agent-journal/internal/journal"

// Hooks lets embedders observe and influence engine operations. All methods
// run on the calling goroutine while the relevant file lock is held, so
// implementations must return quickly.
//
// Failure handling is bounded per method: BeforeAppend may veto, the others
// may not. A panic in any hook is not recovered.
type Hooks interface {
	// BeforeAppend runs after validation and ID assignment but before any
	// bytes reach the day file. Returning an error aborts the append and the
	// error is handed to the caller unchanged. The hook may adjust the
	// entry's content fields; identity fields (ID, Timestamp, Kind) are
	// reassigned from the engine's values after the hook returns.
	BeforeAppend(e *journal.Entry) error

	// AfterAppend runs once the entry is durably in the log, before the
	// index upsert. The entry is final at this point.
	AfterAppend(e *journal.Entry)

	// CaptureExtra contributes additional key/value pairs to a snapshot.
	// An error is reported through the warn callback and the snapshot
	// proceeds without the extra data.
	CaptureExtra() (map[string]string, error)
}

// NopHooks is the default Hooks implementation.
type NopHooks struct{}

func (NopHooks) BeforeAppend(*journal.Entry) error        { return nil }
func (NopHooks) AfterAppend(*journal.Entry)               {}
func (NopHooks) CaptureExtra() (map[string]string, error) { return nil, nil }

var _ Hooks = NopHooks{}
