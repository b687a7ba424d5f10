// Package attachments stores associations between documents and uploaded
// proof files. File contents live elsewhere and are never read here.
package attachments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/access"
	"github.com/odyssey-erp/odyssey-stock/internal/platform/db"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Attachment links a stored file to a transaction.
type Attachment struct {
	ID              uuid.UUID `json:"id"`
	TransactionType string    `json:"transactionType"`
	TransactionID   int64     `json:"transactionId"`
	FileKey         string    `json:"fileKey"`
	FileName        string    `json:"fileName"`
	ContentType     string    `json:"contentType"`
	UploadedBy      int64     `json:"uploadedBy"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Input is a new association.
type Input struct {
	TransactionType string `json:"transactionType" validate:"required,max=32"`
	TransactionID   int64  `json:"transactionId" validate:"required,gt=0"`
	FileKey         string `json:"fileKey" validate:"required,max=512"`
	FileName        string `json:"fileName" validate:"required,max=255"`
	ContentType     string `json:"contentType" validate:"max=128"`
}

// Repository persists attachments.
type Repository interface {
	Insert(ctx context.Context, a Attachment) error
	List(ctx context.Context, transactionType string, transactionID int64) ([]Attachment, error)
}

// Auditor records attach events. *shared.AuditLogger satisfies it.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records and lists attachments.
type Service struct {
	repo   Repository
	audit  Auditor
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// WithAudit enables audit records for new attachments.
func (s *Service) WithAudit(a Auditor) *Service {
	s.audit = a
	return s
}

// Attach stores an association.
func (s *Service) Attach(ctx context.Context, p access.Principal, in Input) (Attachment, error) {
	if err := access.RequireOperator(p); err != nil {
		return Attachment{}, err
	}
	a := Attachment{
		ID:              uuid.New(),
		TransactionType: strings.ToUpper(strings.TrimSpace(in.TransactionType)),
		TransactionID:   in.TransactionID,
		FileKey:         strings.TrimSpace(in.FileKey),
		FileName:        strings.TrimSpace(in.FileName),
		ContentType:     in.ContentType,
		UploadedBy:      p.ID,
		CreatedAt:       s.now(),
	}
	if a.TransactionType == "" || a.TransactionID <= 0 || a.FileKey == "" || a.FileName == "" {
		return Attachment{}, shared.Validation("transactionType, transactionId, fileKey and fileName are required")
	}
	if a.ContentType == "" {
		a.ContentType = "application/octet-stream"
	}
	if err := s.repo.Insert(ctx, a); err != nil {
		return Attachment{}, err
	}
	s.logger.Debug("attachment stored", slog.String("id", a.ID.String()), slog.String("transaction_type", a.TransactionType), slog.Int64("transaction_id", a.TransactionID))
	if s.audit != nil {
		err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  p.ID,
			Action:   shared.AuditAttach,
			Entity:   "attachments",
			EntityID: a.ID.String(),
			Meta:     map[string]any{"transactionType": a.TransactionType, "transactionId": a.TransactionID, "fileKey": a.FileKey},
			At:       a.CreatedAt,
		})
		if err != nil {
			s.logger.Warn("record audit", slog.String("action", shared.AuditAttach), slog.Any("error", err))
		}
	}
	return a, nil
}

// List returns attachments of one transaction, oldest first.
func (s *Service) List(ctx context.Context, p access.Principal, transactionType string, transactionID int64) ([]Attachment, error) {
	if err := access.RequireOperator(p); err != nil {
		return nil, err
	}
	transactionType = strings.ToUpper(strings.TrimSpace(transactionType))
	if transactionType == "" || transactionID <= 0 {
		return nil, shared.Validation("transactionType and transactionId are required")
	}
	return s.repo.List(ctx, transactionType, transactionID)
}

// PGRepository stores attachments in PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs PGRepository.
func NewRepository(conn db.DBTX) *PGRepository {
	return &PGRepository{db: conn}
}

// Insert writes one attachment row.
func (r *PGRepository) Insert(ctx context.Context, a Attachment) error {
	_, err := r.db.Exec(ctx, `INSERT INTO attachments
(id, transaction_type, transaction_id, file_key, file_name, content_type, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.TransactionType, a.TransactionID, a.FileKey, a.FileName, a.ContentType, a.UploadedBy, a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return shared.Conflict("file %s is already attached to %s %d", a.FileKey, a.TransactionType, a.TransactionID)
	}
	if err != nil {
		return fmt.Errorf("attachments: insert: %w", err)
	}
	return nil
}

// List reads attachments of one transaction.
func (r *PGRepository) List(ctx context.Context, transactionType string, transactionID int64) ([]Attachment, error) {
	rows, err := r.db.Query(ctx, `SELECT id, transaction_type, transaction_id, file_key, file_name, content_type, uploaded_by, created_at
FROM attachments WHERE transaction_type = $1 AND transaction_id = $2 ORDER BY created_at, id`, transactionType, transactionID)
	if err != nil {
		return nil, fmt.Errorf("attachments: list: %w", err)
	}
	defer rows.Close()
	out := []Attachment{}
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.ID, &a.TransactionType, &a.TransactionID, &a.FileKey, &a.FileName, &a.ContentType, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
