package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/AmazingeventParis/Kooki/internal/goroutine"
	"github.com/AmazingeventParis/Kooki/internal/logger"
	"github.com/AmazingeventParis/Kooki/internal/models"
)

// AuditRepository persists audit trail entries.
type AuditRepository interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// AuditService writes the audit trail. Record is fire-and-forget: it never
// blocks the caller and a storage failure never aborts the primary
// transaction, only gets logged.
type AuditService struct {
	repo AuditRepository
}

func NewAuditService(repo AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Record traces an action against an entity. actorID is nil for
// system-originated actions (webhooks, reconciliation).
func (s *AuditService) Record(actorID *uuid.UUID, action, entityType, entityID string, payload interface{}) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			logger.Log.WithField("action", action).Warnf("audit: marshal payload: %v", err)
		} else {
			raw = b
		}
	}

	entry := &models.AuditLog{
		ActorUserID: actorID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		Payload:     raw,
	}

	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.repo.Insert(ctx, entry); err != nil {
			logger.Log.WithField("action", action).Errorf("audit: insert failed: %v", err)
		}
	})
}
