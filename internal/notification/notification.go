// Package notification keeps the per-user inbox in MongoDB.
package notification

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/directory"
)

const (
	TypeAppointment = "cita"
	TypeSystem      = "sistema"
	TypeExam        = "examen"

	listLimit = 100
)

var (
	ErrNotFound = apperr.NotFound("notification not found")
	ErrNotOwner = apperr.Forbidden("this notification belongs to another user")
	ErrDisabled = apperr.New(apperr.KindInternal, "notifications disabled")
)

type Notification struct {
	ID       primitive.ObjectID     `json:"id" bson:"_id,omitempty"`
	UserID   int64                  `json:"usuario" bson:"user_id"`
	Type     string                 `json:"tipo" bson:"tipo"`
	Title    string                 `json:"titulo" bson:"titulo"`
	Message  string                 `json:"mensaje" bson:"mensaje"`
	Read     bool                   `json:"leida" bson:"leida"`
	Date     time.Time              `json:"fecha" bson:"fecha"`
	Metadata map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

type Store interface {
	Insert(ctx context.Context, n *Notification) error
	Get(ctx context.Context, id primitive.ObjectID) (*Notification, error)
	// FindByUser returns the newest notifications first.
	FindByUser(ctx context.Context, userID int64, limit int64) ([]*Notification, error)
	SetRead(ctx context.Context, id primitive.ObjectID) error
	CountUnread(ctx context.Context, userID int64) (int64, error)
}

type Service interface {
	Create(ctx context.Context, req directory.Requester, n *Notification) error
	// Notify is used by other components to drop a message in a user's inbox.
	Notify(ctx context.Context, userID int64, kind, title, message string, metadata map[string]interface{}) error
	ListForUser(ctx context.Context, userID int64) ([]*Notification, error)
	MarkRead(ctx context.Context, userID int64, id string) (*Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int64, error)
}

type service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) Service {
	return &service{store: store, now: time.Now}
}

// Create lets staff write to any inbox; other users only to their own.
func (s *service) Create(ctx context.Context, req directory.Requester, n *Notification) error {
	if n.UserID == 0 {
		n.UserID = req.UserID
	}
	if n.UserID != req.UserID && !req.IsAdmin() && !req.HasRole(directory.RoleDoctor) {
		return apperr.Forbidden("you cannot send notifications to other users")
	}
	n.Title = strings.TrimSpace(n.Title)
	n.Message = strings.TrimSpace(n.Message)
	if n.Title == "" || n.Message == "" {
		return apperr.InvalidInput("titulo and mensaje are required")
	}
	if n.Type == "" {
		n.Type = TypeSystem
	}
	return s.insert(ctx, n)
}

func (s *service) Notify(ctx context.Context, userID int64, kind, title, message string, metadata map[string]interface{}) error {
	return s.insert(ctx, &Notification{
		UserID:   userID,
		Type:     kind,
		Title:    title,
		Message:  message,
		Metadata: metadata,
	})
}

func (s *service) insert(ctx context.Context, n *Notification) error {
	n.ID = primitive.NilObjectID
	n.Read = false
	n.Date = s.now().UTC()
	return s.store.Insert(ctx, n)
}

func (s *service) ListForUser(ctx context.Context, userID int64) ([]*Notification, error) {
	return s.store.FindByUser(ctx, userID, listLimit)
}

func (s *service) MarkRead(ctx context.Context, userID int64, id string) (*Notification, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.InvalidInput("invalid notification id")
	}
	n, err := s.store.Get(ctx, oid)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, ErrNotOwner
	}
	if n.Read {
		return n, nil
	}
	if err := s.store.SetRead(ctx, oid); err != nil {
		return nil, err
	}
	n.Read = true
	return n, nil
}

func (s *service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

type disabled struct{}

// Disabled is the inbox used when MongoDB is not configured.
func Disabled() Service { return disabled{} }

func (disabled) Create(context.Context, directory.Requester, *Notification) error { return ErrDisabled }
func (disabled) Notify(context.Context, int64, string, string, string, map[string]interface{}) error {
	return ErrDisabled
}
func (disabled) ListForUser(context.Context, int64) ([]*Notification, error) { return nil, ErrDisabled }
func (disabled) MarkRead(context.Context, int64, string) (*Notification, error) {
	return nil, ErrDisabled
}
func (disabled) UnreadCount(context.Context, int64) (int64, error) { return 0, ErrDisabled }
