package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set, skipping Postgres tests")
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestPostgresMigration verifies that migrations run without error on a fresh database.
func TestPostgresMigration(t *testing.T) {
	s := newTestPostgresStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatal(err)
	}
}

// TestPostgresFullFlow covers dialog upsert, message fan-out bookkeeping and retention.
func TestPostgresFullFlow(t *testing.T) {
	s := newTestPostgresStore(t)
	ctx := context.Background()

	dialogID := time.Now().UnixNano()
	userID := time.Now().UnixNano() + 1

	if err := s.PutDialog(ctx, &Dialog{ID: dialogID, Members: "[1,2]"}); err != nil {
		t.Fatalf("PutDialog: %v", err)
	}
	if err := s.PutDialog(ctx, &Dialog{ID: dialogID, Members: "[1,2,3]"}); err != nil {
		t.Fatalf("PutDialog (upsert): %v", err)
	}
	d, err := s.GetDialog(ctx, dialogID)
	if err != nil || d == nil || d.Members != "[1,2,3]" {
		t.Fatalf("GetDialog: got %+v, %v", d, err)
	}

	old := &Message{
		ID: uuid.New().String(), DialogID: dialogID, SenderID: 1,
		Text: "old", Payload: `{"text":"old"}`, CreatedAt: time.Now().Add(-48 * time.Hour),
	}
	if err := s.SaveMessage(ctx, old, []int64{userID}); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	fresh := &Message{
		ID: uuid.New().String(), DialogID: dialogID, SenderID: 1,
		Text: "fresh", Payload: `{"text":"fresh"}`,
	}
	if err := s.SaveMessage(ctx, fresh, nil); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	count, err := s.CountUnread(ctx, userID)
	if err != nil || count != 1 {
		t.Fatalf("CountUnread: got %d, %v", count, err)
	}

	if _, err := s.PurgeOldMessages(ctx, time.Now().Add(-24*time.Hour)); err != nil {
		t.Fatalf("PurgeOldMessages: %v", err)
	}
	messages, err := s.GetMessages(ctx, dialogID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 1 || messages[0].ID != fresh.ID {
		t.Errorf("GetMessages after purge: got %+v", messages)
	}
	count, _ = s.CountUnread(ctx, userID)
	if count != 0 {
		t.Errorf("CountUnread after purge: got %d, want 0", count)
	}
}
