package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStorage(t *testing.T) (*LocalInvoiceStorage, string) {
	logger, _ := zap.NewDevelopment()
	dir := t.TempDir()
	s := NewLocalInvoiceStorage(dir, logger)
	s.now = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	return s, dir
}

func TestLocalInvoiceStorage_SaveReadDelete(t *testing.T) {
	s, dir := newTestStorage(t)
	ctx := context.Background()
	content := []byte("%PDF-1.7\n%fake invoice")

	fileID, err := s.Save(ctx, "Factura Marzo.PDF", content)
	require.NoError(t, err)
	assert.Regexp(t, `^2026-02/[0-9a-f-]{36}\.pdf$`, fileID)

	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(fileID)))
	require.NoError(t, err)

	got, mimeType, err := s.Read(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, "application/pdf", mimeType)

	require.NoError(t, s.Delete(ctx, fileID))
	_, _, err = s.Read(ctx, fileID)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	// deleting twice is fine
	assert.NoError(t, s.Delete(ctx, fileID))
}

func TestLocalInvoiceStorage_RejectsUnsupportedType(t *testing.T) {
	s, _ := newTestStorage(t)
	_, err := s.Save(context.Background(), "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestLocalInvoiceStorage_PathTraversal(t *testing.T) {
	s, _ := newTestStorage(t)
	ctx := context.Background()

	tests := []string{"../etc/passwd", "../../secret.pdf", "2026-02/../../x.pdf"}
	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			_, _, err := s.Read(ctx, id)
			assert.ErrorIs(t, err, entity.ErrInvalidInput)
			assert.ErrorIs(t, s.Delete(ctx, id), entity.ErrInvalidInput)
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Factura Marzo", "FacturaMarzo"},
		{"../../etc", "etc"},
		{"lote_3-b", "lote_3-b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in))
	}
}
