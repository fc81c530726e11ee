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

// NotificationRepository persists user notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Pusher delivers a payload to the user's live websocket connections, if any.
type Pusher interface {
	Push(userID uuid.UUID, payload []byte)
}

// NotificationService persists notifications and pushes them over websocket.
// Notify is fire-and-forget: delivery problems are logged, never returned,
// so a notification failure can't fail a payment transition.
type NotificationService struct {
	repo   NotificationRepository
	pusher Pusher
}

func NewNotificationService(repo NotificationRepository, pusher Pusher) *NotificationService {
	return &NotificationService{repo: repo, pusher: pusher}
}

// Notify stores a notification for the user and pushes it to open sockets.
func (s *NotificationService) Notify(userID uuid.UUID, event string, data interface{}) {
	payload, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  data,
	})
	if err != nil {
		logger.Log.WithField("event", event).Warnf("notification: marshal payload: %v", err)
		return
	}

	goroutine.SafeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		n := &models.Notification{UserID: userID, Payload: payload}
		if err := s.repo.Create(ctx, n); err != nil {
			logger.Log.WithField("user_id", userID).Errorf("notification: persist failed: %v", err)
		}
		if s.pusher != nil {
			s.pusher.Push(userID, payload)
		}
	})
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, id)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
