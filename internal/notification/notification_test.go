package notification

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/mesikahq/clinic-records/internal/apperr"
	"github.com/mesikahq/clinic-records/internal/directory"
)

type memStore struct {
	docs map[primitive.ObjectID]*Notification
}

func newMemStore() *memStore {
	return &memStore{docs: map[primitive.ObjectID]*Notification{}}
}

func (m *memStore) Insert(ctx context.Context, n *Notification) error {
	n.ID = primitive.NewObjectID()
	stored := *n
	m.docs[n.ID] = &stored
	return nil
}

func (m *memStore) Get(ctx context.Context, id primitive.ObjectID) (*Notification, error) {
	n, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *n
	return &copied, nil
}

func (m *memStore) FindByUser(ctx context.Context, userID int64, limit int64) ([]*Notification, error) {
	list := []*Notification{}
	for _, n := range m.docs {
		if n.UserID == userID {
			list = append(list, n)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Date.After(list[j].Date) })
	if int64(len(list)) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *memStore) SetRead(ctx context.Context, id primitive.ObjectID) error {
	n, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (m *memStore) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	for _, n := range m.docs {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func newTestService() (*service, *memStore) {
	store := newMemStore()
	svc := NewService(store).(*service)
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	return svc, store
}

var (
	patientReq = directory.Requester{UserID: 30, Role: directory.RolePatient}
	doctorReq  = directory.Requester{UserID: 20, Role: directory.RoleDoctor}
)

func TestCreateAndList(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if err := svc.Create(ctx, patientReq, &Notification{Title: "Recordatorio", Message: "Tomar medicamento"}); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := svc.Notify(ctx, 30, TypeAppointment, "Cita actualizada", "Su cita fue confirmada", map[string]interface{}{"cita_id": int64(4)}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if err := svc.Notify(ctx, 31, TypeAppointment, "Otra", "Otro usuario", nil); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	list, err := svc.ListForUser(ctx, 30)
	if err != nil {
		t.Fatalf("ListForUser() error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("notifications = %d, want 2", len(list))
	}
	if list[0].Type != TypeAppointment || list[1].Type != TypeSystem {
		t.Errorf("order = %s, %s; want newest first", list[0].Type, list[1].Type)
	}

	count, _ := svc.UnreadCount(ctx, 30)
	if count != 2 {
		t.Errorf("unread = %d, want 2", count)
	}
}

func TestCreatePermissions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	err := svc.Create(ctx, patientReq, &Notification{UserID: 31, Title: "x", Message: "y"})
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("patient to other user error = %v", err)
	}
	if err := svc.Create(ctx, doctorReq, &Notification{UserID: 31, Title: "x", Message: "y"}); err != nil {
		t.Errorf("doctor to other user error = %v", err)
	}
	if err := svc.Create(ctx, patientReq, &Notification{Title: " "}); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("empty notification error = %v", err)
	}
}

func TestMarkRead(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	n := &Notification{Title: "Aviso", Message: "Hola"}
	svc.Create(ctx, patientReq, n)

	if _, err := svc.MarkRead(ctx, 31, n.ID.Hex()); !errors.Is(err, ErrNotOwner) {
		t.Errorf("MarkRead() by other user error = %v", err)
	}
	if _, err := svc.MarkRead(ctx, 30, "not-an-id"); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("MarkRead() bad id error = %v", err)
	}
	if _, err := svc.MarkRead(ctx, 30, primitive.NewObjectID().Hex()); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("MarkRead() missing error = %v", err)
	}

	read, err := svc.MarkRead(ctx, 30, n.ID.Hex())
	if err != nil || !read.Read {
		t.Fatalf("MarkRead() = %+v, %v", read, err)
	}
	if count, _ := svc.UnreadCount(ctx, 30); count != 0 {
		t.Errorf("unread = %d after MarkRead", count)
	}
}

func TestDisabled(t *testing.T) {
	svc := Disabled()
	_, err := svc.ListForUser(context.Background(), 1)
	if !errors.Is(err, ErrDisabled) || apperr.KindOf(err) != apperr.KindInternal {
		t.Errorf("disabled ListForUser() error = %v", err)
	}
}
