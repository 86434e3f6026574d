package port

import "context"

// InvoiceFileStorage stores uploaded invoice documents by file id
type InvoiceFileStorage interface {
	Save(ctx context.Context, fileName string, content []byte) (fileID string, err error)
	Read(ctx context.Context, fileID string) (content []byte, mimeType string, err error)
	Delete(ctx context.Context, fileID string) error
}
