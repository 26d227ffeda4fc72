package app

import (
	"context"
	"testing"
	"time"

	"github.com/backdesk/backdesk/internal/api"
	"github.com/backdesk/backdesk/internal/model"
	"github.com/backdesk/backdesk/internal/notify"
	"github.com/backdesk/backdesk/internal/push"
	"github.com/backdesk/backdesk/internal/stream"
)

type stubRemote struct{}

func (stubRemote) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	return nil, nil
}
func (stubRemote) MarkRead(ctx context.Context, id int64) error { return nil }
func (stubRemote) MarkAllRead(ctx context.Context) error        { return nil }

type stubPrefsRemote struct {
	record model.Preferences
}

func (r stubPrefsRemote) Preferences(ctx context.Context) (model.Preferences, error) {
	return r.record, nil
}

func (r stubPrefsRemote) UpdatePreferences(
	ctx context.Context,
	patch model.PreferencesPatch,
) (model.Preferences, error) {
	patch.Apply(&r.record)
	return r.record, nil
}

func newTestModel(t *testing.T, record model.Preferences) Model {
	t.Helper()

	prefs := notify.NewPrefs(stubPrefsRemote{record: record}, nil, nil)
	if err := prefs.Load(context.Background()); err != nil {
		t.Fatalf("loading preferences: %v", err)
	}

	conn := stream.New("ws://example.com/stream/", api.StaticTokenSource("tok"), stream.Options{})
	t.Cleanup(conn.Close)

	return New(Deps{
		Store: notify.NewStore(stubRemote{}, nil, nil),
		Prefs: prefs,
		Conn:  conn,
		Push:  push.NewManager(push.DefaultPlatform(), nil, nil, push.Options{}),
	})
}

func systemNotification(id int64) stream.NotificationMsg {
	return stream.NotificationMsg{Notification: model.Notification{
		ID:        id,
		Type:      model.TypeSystem,
		Title:     "maintenance window",
		CreatedAt: time.Now(),
	}}
}

func TestDisabledCategoryIsStoredButNotToasted(t *testing.T) {
	record := model.DefaultPreferences()
	record.SystemEnabled = false
	m := newTestModel(t, record)

	updated, _ := m.Update(systemNotification(1))
	got := updated.(Model)

	if got.store.Len() != 1 {
		t.Fatal("disabled category must still be ingested")
	}
	if got.store.UnreadCount() != 1 {
		t.Fatal("disabled category must still count as unread")
	}
	if got.toast.Visible() {
		t.Fatal("disabled category must not raise a toast")
	}
}

func TestEnabledCategoryRaisesToast(t *testing.T) {
	m := newTestModel(t, model.DefaultPreferences())

	updated, _ := m.Update(systemNotification(1))
	got := updated.(Model)

	if !got.toast.Visible() {
		t.Fatal("enabled category should raise a toast")
	}
	if got.toast.Current().ID != 1 {
		t.Fatalf("toast shows id %d, want 1", got.toast.Current().ID)
	}
}

func TestRedeliveredNotificationDoesNotReToast(t *testing.T) {
	m := newTestModel(t, model.DefaultPreferences())

	updated, _ := m.Update(systemNotification(1))
	got := updated.(Model)
	got.toast.Dismiss()

	redelivered, _ := got.Update(systemNotification(1))
	final := redelivered.(Model)

	if final.toast.Visible() {
		t.Fatal("a re-delivered duplicate must not raise a second toast")
	}
	if final.store.Len() != 1 {
		t.Fatalf("store len = %d, want 1 after duplicate delivery", final.store.Len())
	}
}
