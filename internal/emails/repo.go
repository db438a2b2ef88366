package emails

import "context"

// Repo defines persistence for email_contents and document_detail.
type Repo interface {
	Create(ctx context.Context, e *EmailContent) error
	Get(ctx context.Context, id int64) (EmailContent, error)
	ListByHSID(ctx context.Context, hsID string) ([]EmailContent, error)
	UpdateClassification(ctx context.Context, id int64, docType DocType, rendering Rendering, markdownLink string) error
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdateStatusByHSID(ctx context.Context, hsID string, status Status) error
	InsertDetailIfAbsent(ctx context.Context, d *DocumentDetail) (bool, error)
	ListDetails(ctx context.Context, emailContentID int64) ([]DocumentDetail, error)
}
