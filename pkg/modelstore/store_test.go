package modelstore

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/CTAG07/Drosera/pkg/fcm"
)

// setupTestStore creates a file-backed SQLite database and a Store for
// testing. It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) (context.Context, *Store) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbFile+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := SetupSchema(db); err != nil {
		t.Fatalf("failed to set up schema: %v", err)
	}

	s, err := New(db)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Close)

	return context.Background(), s
}

// newTrainedModel builds a small locked model with known probabilities.
func newTrainedModel(t *testing.T, opts ...fcm.Option) *fcm.Model {
	t.Helper()
	m, err := fcm.New(2, 0.1, opts...)
	if err != nil {
		t.Fatalf("fcm.New() error = %v", err)
	}
	m.Learn("ABRACADABRA")
	return m
}

func probe(m *fcm.Model) []float64 {
	return []float64{
		m.GetProbability("AB", "R"),
		m.GetProbability("RA", "C"),
		m.GetProbability("ZZ", "A"),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name   string
		binary bool
		opts   []fcm.Option
	}{
		{"fixed/json", false, nil},
		{"fixed/binary", true, nil},
		{"backoff/json", false, []fcm.Option{fcm.WithBackoff()}},
		{"backoff/binary", true, []fcm.Option{fcm.WithBackoff()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx, s := setupTestStore(t)
			m := newTrainedModel(t, tc.opts...)
			want := probe(m)

			if err := s.Save(ctx, "abra", m, tc.binary); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			loaded, err := s.Load(ctx, "abra")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}

			if loaded.K() != m.K() || loaded.Alpha() != m.Alpha() || loaded.Recursive() != m.Recursive() {
				t.Errorf("Load() parameters = (%d, %v, %v), want (%d, %v, %v)",
					loaded.K(), loaded.Alpha(), loaded.Recursive(), m.K(), m.Alpha(), m.Recursive())
			}
			if !loaded.IsLocked() {
				t.Error("Load() model should be locked after serialization")
			}
			got := probe(loaded)
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("probe[%d] = %v, want %v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	ctx, s := setupTestStore(t)
	m := newTrainedModel(t)
	if err := s.Save(ctx, "abra", m, false); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	m2, err := fcm.New(3, 1.0)
	if err != nil {
		t.Fatalf("fcm.New() error = %v", err)
	}
	m2.Learn("MISSISSIPPI")
	if err := s.Save(ctx, "abra", m2, true); err != nil {
		t.Fatalf("Save() overwrite error = %v", err)
	}

	loaded, err := s.Load(ctx, "abra")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.K() != 3 {
		t.Errorf("Load() K = %d, want 3 after overwrite", loaded.K())
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("List() returned %d entries, want 1", len(entries))
	}
}

func TestLoadMissingModel(t *testing.T) {
	ctx, s := setupTestStore(t)
	if _, err := s.Load(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	ctx, s := setupTestStore(t)
	if err := s.Save(ctx, "beta", newTrainedModel(t), false); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, "alpha", newTrainedModel(t, fcm.WithBackoff()), true); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List() returned %d entries, want 2", len(entries))
	}
	if entries[0].Name != "alpha" || entries[1].Name != "beta" {
		t.Errorf("List() order = [%s, %s], want [alpha, beta]", entries[0].Name, entries[1].Name)
	}
	if !entries[0].Recursive || !entries[0].Binary {
		t.Errorf("List() entry alpha = %+v, want recursive binary", entries[0])
	}
	if entries[0].Size <= 0 {
		t.Errorf("List() entry alpha Size = %d, want > 0", entries[0].Size)
	}
	if entries[0].UpdatedAt == "" {
		t.Error("List() entry alpha UpdatedAt is empty")
	}
}

func TestDelete(t *testing.T) {
	ctx, s := setupTestStore(t)
	if err := s.Save(ctx, "abra", newTrainedModel(t), false); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Delete(ctx, "abra"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Load(ctx, "abra"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after Delete() error = %v, want ErrNotFound", err)
	}

	// Deleting a missing model is not an error.
	if err := s.Delete(ctx, "abra"); err != nil {
		t.Errorf("Delete() of missing model error = %v", err)
	}
}

func TestStats(t *testing.T) {
	ctx, s := setupTestStore(t)

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Models != 0 || stats.PayloadBytes != 0 {
		t.Errorf("Stats() on empty catalog = %+v, want zeros", stats)
	}

	if err := s.Save(ctx, "a", newTrainedModel(t), false); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := s.Save(ctx, "b", newTrainedModel(t), true); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	stats, err = s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Models != 2 {
		t.Errorf("Stats() Models = %d, want 2", stats.Models)
	}
	if stats.PayloadBytes <= 0 {
		t.Errorf("Stats() PayloadBytes = %d, want > 0", stats.PayloadBytes)
	}
}
