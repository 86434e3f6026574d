package service

import (
	"context"
	"fmt"

	"github.com/garyjia/expedition-settlement/internal/application/port"
	"github.com/garyjia/expedition-settlement/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// DeltaAlertThreshold is the absolute invoice delta in euros above which the
// client channel is notified even when all weights match.
var DeltaAlertThreshold = decimal.NewFromInt(1)

// VerificationService runs the AI reconciliation of a package against its
// attached invoice and manages the invoice file itself.
type VerificationService interface {
	UploadInvoice(ctx context.Context, actor, packageID, fileName string, content []byte) (*entity.Package, error)
	DeleteInvoice(ctx context.Context, actor, packageID string) (*entity.Package, error)
	Verify(ctx context.Context, actor, packageID string) (*entity.Package, error)
}

type verificationServiceImpl struct {
	packages  PackageService
	clients   port.ClientRepository
	storage   port.InvoiceFileStorage
	extractor port.InvoiceExtractor
	notifier  port.DiscrepancyNotifier
	logger    Logger
}

// NewVerificationService creates a new VerificationService. notifier may be nil.
func NewVerificationService(
	packages PackageService,
	clients port.ClientRepository,
	storage port.InvoiceFileStorage,
	extractor port.InvoiceExtractor,
	notifier port.DiscrepancyNotifier,
	logger Logger,
) VerificationService {
	return &verificationServiceImpl{
		packages:  packages,
		clients:   clients,
		storage:   storage,
		extractor: extractor,
		notifier:  notifier,
		logger:    logger,
	}
}

// UploadInvoice stores the file and attaches it to the package. The file is
// removed again if the package cannot be updated.
func (s *verificationServiceImpl) UploadInvoice(ctx context.Context, actor, packageID, fileName string, content []byte) (*entity.Package, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty invoice file", entity.ErrInvalidInput)
	}

	fileID, err := s.storage.Save(ctx, fileName, content)
	if err != nil {
		return nil, fmt.Errorf("save invoice file: %w", err)
	}

	pkg, err := s.packages.AttachInvoice(ctx, actor, packageID, fileID)
	if err != nil {
		if delErr := s.storage.Delete(ctx, fileID); delErr != nil {
			s.logger.Error("Failed to remove orphaned invoice file", "file_id", fileID, "error", delErr)
		}
		return nil, err
	}

	s.logger.Info("Invoice attached", "package_id", packageID, "file_id", fileID)
	return pkg, nil
}

// DeleteInvoice detaches the invoice and removes the stored file
func (s *verificationServiceImpl) DeleteInvoice(ctx context.Context, actor, packageID string) (*entity.Package, error) {
	view, err := s.packages.Get(ctx, packageID)
	if err != nil {
		return nil, err
	}
	fileID := view.Package.InvoiceFileID

	pkg, err := s.packages.RemoveInvoice(ctx, actor, packageID)
	if err != nil {
		return nil, err
	}

	if fileID != "" {
		if err := s.storage.Delete(ctx, fileID); err != nil {
			s.logger.Error("Failed to delete invoice file", "file_id", fileID, "error", err)
		}
	}
	return pkg, nil
}

// Verify extracts the attached invoice and stores the resulting verification.
// An extraction without a total returns entity.ErrExtractionFailed and leaves
// the package untouched.
func (s *verificationServiceImpl) Verify(ctx context.Context, actor, packageID string) (*entity.Package, error) {
	view, err := s.packages.Get(ctx, packageID)
	if err != nil {
		return nil, err
	}
	fileID := view.Package.InvoiceFileID
	if fileID == "" {
		return nil, entity.ErrNoInvoice
	}
	if !view.Settlement.Priced {
		return nil, fmt.Errorf("%w: package has no unit price", entity.ErrInvalidInput)
	}

	content, mimeType, err := s.storage.Read(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("read invoice file: %w", err)
	}

	s.logger.Info("Extracting invoice", "package_id", packageID, "file_id", fileID, "mime_type", mimeType)
	ex, err := s.extractor.ExtractInvoice(ctx, content, mimeType)
	if err != nil {
		s.logger.Error("Invoice extraction failed", "package_id", packageID, "error", err)
		return nil, fmt.Errorf("%w: %v", entity.ErrExtractionFailed, err)
	}

	pkg, err := s.packages.StoreVerification(ctx, actor, packageID, fileID, ex)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, pkg)
	return pkg, nil
}

// notify alerts the client channel when the verification found differences.
// Failures are logged only.
func (s *verificationServiceImpl) notify(ctx context.Context, pkg *entity.Package) {
	rec := pkg.Verification
	if s.notifier == nil || rec == nil || (rec.WeightsMatch && rec.Delta.Abs().LessThanOrEqual(DeltaAlertThreshold)) {
		return
	}

	client, err := s.clients.GetByID(ctx, pkg.ClientID)
	if err != nil || client == nil {
		s.logger.Error("Skipping discrepancy notification", "package_id", pkg.ID, "client_id", pkg.ClientID, "error", err)
		return
	}
	if err := s.notifier.NotifyDiscrepancy(ctx, client, pkg); err != nil {
		s.logger.Error("Failed to send discrepancy notification", "package_id", pkg.ID, "error", err)
		return
	}
	s.logger.Info("Discrepancy notification sent", "package_id", pkg.ID, "client_id", client.ID)
}
