package storage

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

	allowedExtensions = map[string]bool{
		".pdf":  true,
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".webp": true,
	}
)

// LocalInvoiceStorage implements port.InvoiceFileStorage on the local filesystem.
// File ids are "<yyyy-mm>/<uuid><ext>" relative to baseDir.
type LocalInvoiceStorage struct {
	baseDir string
	now     func() time.Time
	logger  *zap.Logger
}

// NewLocalInvoiceStorage creates a new LocalInvoiceStorage
func NewLocalInvoiceStorage(baseDir string, logger *zap.Logger) *LocalInvoiceStorage {
	return &LocalInvoiceStorage{
		baseDir: baseDir,
		now:     time.Now,
		logger:  logger,
	}
}

// Save writes content under a new file id. Only PDF and image uploads are accepted.
func (s *LocalInvoiceStorage) Save(ctx context.Context, fileName string, content []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("%w: unsupported invoice file type %q", entity.ErrInvalidInput, ext)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate file id: %w", err)
	}
	fileID := path.Join(s.now().Format("2006-01"), id.String()+ext)

	fullPath, err := s.resolve(fileID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("Invoice file saved",
		zap.String("file_id", fileID),
		zap.String("original_name", SanitizeName(strings.TrimSuffix(fileName, filepath.Ext(fileName)))),
		zap.Int("size", len(content)))
	return fileID, nil
}

// Read returns the file content and its sniffed MIME type
func (s *LocalInvoiceStorage) Read(ctx context.Context, fileID string) ([]byte, string, error) {
	fullPath, err := s.resolve(fileID)
	if err != nil {
		return nil, "", err
	}

	content, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, "", fmt.Errorf("invoice file %s: %w", fileID, entity.ErrNotFound)
	}
	if err != nil {
		s.logger.Error("Failed to read file",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}

	mimeType := http.DetectContentType(content)
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return content, mimeType, nil
}

// Delete removes a file. Missing files are not an error.
func (s *LocalInvoiceStorage) Delete(ctx context.Context, fileID string) error {
	fullPath, err := s.resolve(fileID)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// resolve maps a file id to a path inside baseDir
func (s *LocalInvoiceStorage) resolve(fileID string) (string, error) {
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(fileID))

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path escapes base directory: %s", entity.ErrInvalidInput, fileID)
	}
	return absPath, nil
}

// SanitizeName keeps only alphanumerics, hyphens and underscores
func SanitizeName(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	return unsafeChars.ReplaceAllString(name, "")
}

// Verify interface compliance
var _ port.InvoiceFileStorage = (*LocalInvoiceStorage)(nil)
