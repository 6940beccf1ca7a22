package core

import (
	"context"
	"time"
)

// RowStatus is the value written to the status column of a work row.
type RowStatus string

const (
	RowStatusNew        RowStatus = "New"
	RowStatusProcessing RowStatus = "Processing"
	RowStatusDone       RowStatus = "Done"
	RowStatusFailed     RowStatus = "Failed"
)

// RunStatus describes the state of a controller cycle in the local run ledger.
type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusDone       RunStatus = "done"
	RunStatusFailed     RunStatus = "failed"
	// RunStatusAbandoned marks a ledger entry whose process died between
	// claim and terminal write. The sheet row still needs a manual reset.
	RunStatusAbandoned RunStatus = "abandoned"
)

// Account is one upload identity, loaded once at startup.
type Account struct {
	Name       string
	CookieFile string
	ChannelURL string
}

// Row is one unit of work read from the row source.
type Row struct {
	// Index is the 1-based row number in the source; the header is row 1.
	Index  int
	Values map[string]string
}

// Get returns the value of column, or "" when the column is absent.
func (r Row) Get(column string) string {
	if column == "" || r.Values == nil {
		return ""
	}
	return r.Values[column]
}

// Lookup returns the value of column and whether the row has it.
func (r Row) Lookup(column string) (string, bool) {
	if column == "" || r.Values == nil {
		return "", false
	}
	v, ok := r.Values[column]
	return v, ok
}

// UploadJob carries everything the executor needs for a single upload.
type UploadJob struct {
	Account     Account
	VideoPath   string
	Title       string
	Description string
	Tags        string
	Hashtags    string
	Visibility  string
	// AlteredContent is nil when the row does not state anything about
	// synthetic content; an explicit value is passed through to the executor.
	AlteredContent *string
	MadeForKids    bool
}

// BlobRef points at a remote copy of a video. Exactly one field is set.
type BlobRef struct {
	FileID string
	URL    string
}

// RowSource supplies pending rows and accepts status writes.
type RowSource interface {
	// FetchPending returns the first row whose status is New, or nil.
	FetchPending(ctx context.Context) (*Row, error)
	// UpdateStatus writes status and, when resultURL is not empty, the result URL.
	UpdateStatus(ctx context.Context, row Row, status RowStatus, resultURL string) error
}

// BlobFetcher resolves a remote reference to a local file.
type BlobFetcher interface {
	Fetch(ctx context.Context, ref BlobRef, destination string) (string, error)
}

// Uploader performs one complete upload attempt and returns the video URL.
type Uploader interface {
	Upload(ctx context.Context, job UploadJob) (string, error)
}

// Notifier delivers a short human readable message.
type Notifier interface {
	Send(ctx context.Context, title, body string) error
}

// RunRecorder persists the controller's view of each cycle.
type RunRecorder interface {
	InsertRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, status RunStatus, attempts int, endedAt time.Time, videoURL, errMsg *string) error
	TouchAccount(ctx context.Context, name string, status RunStatus, at time.Time) error
}

// Run captures one claimed cycle of the upload controller.
type Run struct {
	ID        string
	RowIndex  int
	Account   string
	Title     string
	VideoPath string
	Trigger   string
	Status    RunStatus
	Attempts  int
	VideoURL  *string
	Error     *string
	StartedAt time.Time
	EndedAt   *time.Time
	CreatedAt time.Time
}

// AccountUsage aggregates ledger statistics for one account.
type AccountUsage struct {
	Name          string
	LastUsedAt    *time.Time
	UploadsDone   int
	UploadsFailed int
	UpdatedAt     time.Time
}
