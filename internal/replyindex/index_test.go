package replyindex

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"checkinbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// fakeStore implements domain.RecordStore over in-memory slices.
type fakeStore struct {
	contacts []domain.Contact
	kv       map[string][]byte
	listErr  error
}

func newFakeStore(contacts []domain.Contact) *fakeStore {
	return &fakeStore{contacts: contacts, kv: make(map[string][]byte)}
}

func (s *fakeStore) ListAll(ctx context.Context) ([]domain.Contact, error) {
	return s.contacts, s.listErr
}

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	for i := range s.contacts {
		if s.contacts[i].ID == id {
			c := s.contacts[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Add(ctx context.Context, c domain.Contact) (int64, error) {
	c.ID = int64(len(s.contacts) + 1)
	s.contacts = append(s.contacts, c)
	return c.ID, nil
}

func (s *fakeStore) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	return nil
}

func (s *fakeStore) GetKV(ctx context.Context, key string) ([]byte, error) {
	return s.kv[key], nil
}

func (s *fakeStore) PutKV(ctx context.Context, key string, value []byte) error {
	s.kv[key] = value
	return nil
}

func (s *fakeStore) Close() error { return nil }

func TestBuild_LookupAllKeys(t *testing.T) {
	contacts := []domain.Contact{
		{ID: 1, Phone: "050-1111111"},
		{ID: 2, Phone: "+972502222222"},
		{ID: 3, Phone: "whatsapp:+972503333333"},
	}
	idx := Build(contacts, testLogger())

	want := map[string]int64{
		"972501111111": 1,
		"972502222222": 2,
		"972503333333": 3,
	}
	for key, id := range want {
		got, ok := idx.Lookup(key)
		if !ok || got != id {
			t.Errorf("Lookup(%q) = (%d, %v), want (%d, true)", key, got, ok, id)
		}
	}
	if _, ok := idx.Lookup("972509999999"); ok {
		t.Error("absent key should not be found")
	}
}

func TestBuild_SkipsEmptyKeys(t *testing.T) {
	contacts := []domain.Contact{
		{ID: 1, Phone: ""},
		{ID: 2, Phone: "no digits"},
		{ID: 3, Phone: "050-1111111"},
	}
	idx := Build(contacts, testLogger())
	if len(idx.Entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(idx.Entries))
	}
	if _, ok := idx.Lookup(""); ok {
		t.Error("empty key must never be indexed")
	}
}

func TestBuild_CollisionLastWins(t *testing.T) {
	// Both normalize to 972501111111; the later record wins.
	contacts := []domain.Contact{
		{ID: 1, Phone: "050-1111111"},
		{ID: 2, Phone: "whatsapp:+972501111111"},
	}
	idx := Build(contacts, testLogger())
	id, ok := idx.Lookup("972501111111")
	if !ok || id != 2 {
		t.Errorf("expected later contact 2, got (%d, %v)", id, ok)
	}
}

func TestRebuildAndLoad_Roundtrip(t *testing.T) {
	store := newFakeStore([]domain.Contact{
		{ID: 7, Phone: "050-1234567"},
	})
	ctx := context.Background()

	built, err := Rebuild(ctx, store, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if len(built.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(built.Entries))
	}

	loaded, err := Load(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil {
		t.Fatal("expected persisted snapshot")
	}
	if id, ok := loaded.Lookup("972501234567"); !ok || id != 7 {
		t.Errorf("loaded snapshot Lookup = (%d, %v), want (7, true)", id, ok)
	}
}

func TestLoad_MissingSnapshot(t *testing.T) {
	store := newFakeStore(nil)
	idx, err := Load(context.Background(), store)
	if err != nil {
		t.Fatal(err)
	}
	if idx != nil {
		t.Error("missing snapshot should load as nil, not error")
	}
}
