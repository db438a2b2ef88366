package emails

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("email content not found")
	// ErrStatusRegression is returned when an update would move status backwards.
	ErrStatusRegression = errors.New("email content status regression")
)

// Status is the processing state of one attached file.
type Status string

const (
	StatusPending    Status = "CHUA_XU_LY"
	StatusProcessing Status = "DANG_XU_LY"
	StatusDone       Status = "DA_XU_LY"
	StatusFailed     Status = "XU_LY_LOI"
)

// DocType is the classified kind of a file.
type DocType string

const (
	TypeHSMT    DocType = "HSMT"
	TypeTBMT    DocType = "TBMT"
	TypeHSKT    DocType = "HSKT"
	TypeTCT     DocType = "TCT"
	TypeUnknown DocType = "unknown"
)

// Rendering says whether a PDF carries a text layer or only scans.
type Rendering string

const (
	RenderingText  Rendering = "TEXT"
	RenderingImage Rendering = "IMAGE"
)

// EmailContent is one attached file of one inbound email.
type EmailContent struct {
	ID                int64     `db:"id"`
	HSID              string    `db:"hs_id"`
	Sender            string    `db:"sender"`
	CC                string    `db:"cc"`
	Subject           string    `db:"subject"`
	Body              string    `db:"body"`
	FileName          string    `db:"file_name"`
	Link              string    `db:"link"`
	MarkdownLink      string    `db:"markdown_link"`
	Type              DocType   `db:"type"`
	ClassifyType      Rendering `db:"classify_type"`
	Status            Status    `db:"status"`
	OriginalMessageID string    `db:"original_message_id"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// DocumentDetail is one chapter artifact split from an HSMT file.
type DocumentDetail struct {
	ID             int64     `db:"id"`
	EmailContentID int64     `db:"email_content_id"`
	FileName       string    `db:"file_name"`
	Link           string    `db:"link"`
	LinkMD         string    `db:"link_md"`
	CreatedAt      time.Time `db:"created_at"`
}

var statusRank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusDone:       2,
}

// CanTransition reports whether status may move from one value to another.
// Moves go forward through CHUA_XU_LY < DANG_XU_LY < DA_XU_LY or jump to
// XU_LY_LOI; DA_XU_LY and XU_LY_LOI are terminal. Same-value moves are allowed.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from == StatusDone || from == StatusFailed {
		return false
	}
	if to == StatusFailed {
		return true
	}
	fromRank, okFrom := statusRank[from]
	toRank, okTo := statusRank[to]
	return okFrom && okTo && toRank > fromRank
}

// AllowedFrom lists the statuses that may move to target.
func AllowedFrom(target Status) []Status {
	var out []Status
	for _, s := range []Status{StatusPending, StatusProcessing, StatusDone, StatusFailed} {
		if CanTransition(s, target) {
			out = append(out, s)
		}
	}
	return out
}
