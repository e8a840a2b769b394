package service

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/repository"

	"github.com/rs/zerolog/log"
)

type AuditEntryResponse struct {
	ID         string     `json:"id"`
	UserID     *string    `json:"user_id,omitempty"`
	Username   string     `json:"username,omitempty"`
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Details    string     `json:"details,omitempty"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AuditService reads the audit trail and runs its retention maintenance.
// Writing entries happens inside the domain services' transactions, not here.
type AuditService interface {
	List(ctx context.Context, filter repository.AuditFilter) ([]AuditEntryResponse, int64, error)
	Stats(ctx context.Context) (repository.AuditStats, error)
	Maintain(ctx context.Context, archiveAfter, purgeAfter time.Duration) error
}

type auditService struct {
	audit repository.AuditRepository
}

func NewAuditService(audit repository.AuditRepository) AuditService {
	return &auditService{audit: audit}
}

func (s *auditService) List(ctx context.Context, filter repository.AuditFilter) ([]AuditEntryResponse, int64, error) {
	logs, total, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}

	responses := make([]AuditEntryResponse, 0, len(logs))
	for i := range logs {
		entry := AuditEntryResponse{
			ID:         logs[i].ID.String(),
			Action:     logs[i].Action,
			EntityType: logs[i].EntityType,
			EntityID:   logs[i].EntityID,
			Details:    logs[i].Details,
			ArchivedAt: logs[i].ArchivedAt,
			CreatedAt:  logs[i].CreatedAt,
		}
		if logs[i].UserID != nil {
			id := logs[i].UserID.String()
			entry.UserID = &id
		}
		if logs[i].User != nil {
			entry.Username = logs[i].User.Username
		}
		responses = append(responses, entry)
	}
	return responses, total, nil
}

func (s *auditService) Stats(ctx context.Context) (repository.AuditStats, error) {
	return s.audit.Stats(ctx)
}

// Maintain deletes archived entries older than purgeAfter, then archives
// entries older than archiveAfter. Purging runs first so an entry is only
// ever deleted after it sat archived through at least one earlier pass.
// Invoked on a schedule from main.
func (s *auditService) Maintain(ctx context.Context, archiveAfter, purgeAfter time.Duration) error {
	now := time.Now()

	purged, err := s.audit.PurgeArchivedOlderThan(ctx, now.Add(-purgeAfter))
	if err != nil {
		return fmt.Errorf("audit purge pass failed: %w", err)
	}

	archived, err := s.audit.ArchiveOlderThan(ctx, now.Add(-archiveAfter))
	if err != nil {
		return fmt.Errorf("audit archive pass failed: %w", err)
	}

	if archived > 0 || purged > 0 {
		log.Info().
			Int64("archived", archived).
			Int64("purged", purged).
			Msg("audit maintenance completed")
	}
	return nil
}
