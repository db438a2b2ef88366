package queue

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMissingID indicates an envelope without its routing identifier.
var ErrMissingID = errors.New("missing id")

// ClassifyMessage starts the pipeline for one document set.
type ClassifyMessage struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SplitterFile is one classified file handed to the chapter splitter.
type SplitterFile struct {
	ID           int64  `json:"id"`
	FileName     string `json:"file_name"`
	FilePath     string `json:"file_path"`
	FileType     string `json:"file_type"`
	ClassifyType string `json:"classify_type"`
	MarkdownLink string `json:"markdown_link"`
}

// ChapterSplitterMessage carries the classified files of a set.
type ChapterSplitterMessage struct {
	ID     string         `json:"id"`
	Bucket string         `json:"bucket"`
	Files  []SplitterFile `json:"files"`
}

// MarkdownFile is one Markdown artifact the extraction stage reads.
type MarkdownFile struct {
	Bucket           string `json:"bucket"`
	FileName         string `json:"file_name"`
	FileType         string `json:"file_type"`
	FilePath         string `json:"file_path"`
	MarkdownLink     string `json:"markdown_link"`
	DocumentDetailID int64  `json:"document_detail_id"`
}

// MarkdownMessage triggers extraction for a set.
type MarkdownMessage struct {
	ID    string         `json:"id"`
	Files []MarkdownFile `json:"files"`
}

// SQLAnswerMessage triggers compliance answering for one proposal.
// The "contnet" spelling is part of the wire format.
type SQLAnswerMessage struct {
	HSID                   string `json:"hs_id"`
	ProposalID             int64  `json:"proposal_id"`
	EmailContentID         int64  `json:"email_content_id"`
	IsDataExtractedFinance bool   `json:"is_data_extracted_finance"`
	HasMarkdownHSKT        bool   `json:"is_exist_contnet_markdown_hskt"`
	HasMarkdownTBMT        bool   `json:"is_exist_contnet_markdown_tbmt"`
	HasMarkdownHSMT        bool   `json:"is_exist_contnet_markdown_hsmt"`
}

// SendMailMessage asks the mail stage to deliver a reply.
type SendMailMessage struct {
	EmailContentID  int64    `json:"email_content_id"`
	ProposalID      int64    `json:"proposal_id"`
	Subject         string   `json:"subject"`
	Body            string   `json:"body"`
	Recipient       string   `json:"recipient"`
	AttachmentPaths []string `json:"attachment_paths"`
}

// Decode parses payload into v and checks its routing identifier.
func Decode(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return err
	}
	if strings.TrimSpace(RoutingID(v)) == "" {
		return ErrMissingID
	}
	return nil
}

// RoutingID returns the identifier used for logs and idempotency.
func RoutingID(v any) string {
	switch m := v.(type) {
	case *ClassifyMessage:
		return m.ID
	case *ChapterSplitterMessage:
		return m.ID
	case *MarkdownMessage:
		return m.ID
	case *SQLAnswerMessage:
		if m.HSID != "" {
			return m.HSID
		}
		if m.ProposalID > 0 {
			return formatID(m.ProposalID)
		}
	case *SendMailMessage:
		if m.EmailContentID > 0 {
			return formatID(m.EmailContentID)
		}
	}
	return ""
}

func formatID(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
