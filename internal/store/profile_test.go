package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var profileColumns = []string{"id", "email", "free_generations_used", "subscription_active", "created_at", "updated_at"}

func TestProfileStoreFindByID(t *testing.T) {
	db, mock := newMock(t)
	s := NewProfileStore(db)
	id := uuid.New()
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(profileColumns).AddRow(id.String(), "a@b.test", 1, false, now, now))

	p, err := s.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if p == nil || p.ID != id || p.FreeGenerationsUsed != 1 || p.SubscriptionActive {
		t.Errorf("FindByID = %+v", p)
	}
}

func TestProfileStoreFindByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	s := NewProfileStore(db)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM profiles WHERE id = $1")).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	p, err := s.FindByID(context.Background(), id)
	if err != nil || p != nil {
		t.Errorf("FindByID = (%v, %v), want (nil, nil)", p, err)
	}
}

func TestProfileStoreFindByID_Error(t *testing.T) {
	db, mock := newMock(t)
	s := NewProfileStore(db)

	mock.ExpectQuery("FROM profiles").WillReturnError(errors.New("connection reset"))

	if _, err := s.FindByID(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error")
	}
}

func TestProfileStoreReserveFreeGeneration(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"reserved", 1, true},
		{"allowance used up", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			s := NewProfileStore(db)
			id := uuid.New()

			mock.ExpectExec(regexp.QuoteMeta("WHERE profiles.free_generations_used < $2::int")).
				WithArgs(id, 1).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			got, err := s.ReserveFreeGeneration(context.Background(), id, 1)
			if err != nil {
				t.Fatalf("ReserveFreeGeneration: %v", err)
			}
			if got != tt.want {
				t.Errorf("ReserveFreeGeneration = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProfileStoreReserveFreeGeneration_Error(t *testing.T) {
	db, mock := newMock(t)
	s := NewProfileStore(db)

	mock.ExpectExec("INSERT INTO profiles").WillReturnError(errors.New("read-only transaction"))

	ok, err := s.ReserveFreeGeneration(context.Background(), uuid.New(), 1)
	if err == nil || ok {
		t.Fatalf("ReserveFreeGeneration = (%v, %v), want error", ok, err)
	}
}

func TestProfileStoreReleaseFreeGeneration(t *testing.T) {
	db, mock := newMock(t)
	s := NewProfileStore(db)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("free_generations_used = free_generations_used - 1")).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.ReleaseFreeGeneration(context.Background(), id); err != nil {
		t.Fatalf("ReleaseFreeGeneration: %v", err)
	}
}

// TestProfileStoreIntegration runs the reservation path against PostgreSQL.
func TestProfileStoreIntegration(t *testing.T) {
	db := testDB(t)
	s := NewProfileStore(db)
	ctx := context.Background()
	id := uuid.New()

	t.Cleanup(func() {
		db.Exec("DELETE FROM profiles WHERE id = $1", id)
	})

	p, err := s.FindByID(ctx, id)
	if err != nil || p != nil {
		t.Fatalf("FindByID before insert = (%v, %v)", p, err)
	}

	for i, want := range []bool{true, true, false} {
		got, err := s.ReserveFreeGeneration(ctx, id, 2)
		if err != nil {
			t.Fatalf("ReserveFreeGeneration #%d: %v", i, err)
		}
		if got != want {
			t.Errorf("ReserveFreeGeneration #%d = %v, want %v", i, got, want)
		}
	}

	if err := s.ReleaseFreeGeneration(ctx, id); err != nil {
		t.Fatalf("ReleaseFreeGeneration: %v", err)
	}
	p, err = s.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if p.FreeGenerationsUsed != 1 {
		t.Errorf("FreeGenerationsUsed = %d, want 1", p.FreeGenerationsUsed)
	}
}

// TestProfileStoreReserveConcurrent verifies that parallel reservations for
// one profile never exceed the allowance.
func TestProfileStoreReserveConcurrent(t *testing.T) {
	db := testDB(t)
	s := NewProfileStore(db)
	id := uuid.New()

	t.Cleanup(func() {
		db.Exec("DELETE FROM profiles WHERE id = $1", id)
	})

	const workers = 10
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ReserveFreeGeneration(context.Background(), id, 1)
			if err != nil {
				t.Errorf("ReserveFreeGeneration: %v", err)
				return
			}
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != 1 {
		t.Errorf("granted = %d, want 1", got)
	}
	p, err := s.FindByID(context.Background(), id)
	if err != nil || p == nil {
		t.Fatalf("FindByID = (%v, %v)", p, err)
	}
	if p.FreeGenerationsUsed != 1 {
		t.Errorf("FreeGenerationsUsed = %d, want 1", p.FreeGenerationsUsed)
	}
}
