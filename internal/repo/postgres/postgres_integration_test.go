package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/ninjafinder/internal/db"
	"github.com/geocoder89/ninjafinder/internal/domain/job"
	"github.com/geocoder89/ninjafinder/internal/domain/ninja"
	"github.com/geocoder89/ninjafinder/internal/domain/user"
	"github.com/geocoder89/ninjafinder/internal/geo"
	"github.com/geocoder89/ninjafinder/internal/repo/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
)

// setupPool migrates and empties the database named by TEST_DB_DSN.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")

	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	if err := db.MigrateUp(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, dsn)

	if err != nil {
		t.Fatalf("Failed to create pgx pool: %v", err)
	}

	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `TRUNCATE users, ninjas, jobs`); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	return pool
}

func newNinja(name, email string, p *ninja.Point) ninja.Ninja {
	req := ninja.CreateNinjaRequest{Name: name, Email: email, Rank: "white belt"}
	if p != nil {
		req.Geometry = &ninja.GeometryRequest{Type: ninja.PointType, Coordinates: []float64{p.Lng(), p.Lat()}}
	}
	return ninja.NewFromCreateRequest(req, "")
}

func TestNinjasRepo_NearestOrdersAndFilters(t *testing.T) {
	pool := setupPool(t)
	repo := postgres.NewNinjasRepo(pool, nil)
	ctx := context.Background()

	// about 1.8 km and 5.5 km north of the query point
	p1, err := repo.Create(ctx, newNinja("P1", "p1@ninjago.io", ninja.NewPoint(77.2, 28.616)))
	if err != nil {
		t.Fatalf("create p1: %v", err)
	}
	p2, err := repo.Create(ctx, newNinja("P2", "p2@ninjago.io", ninja.NewPoint(77.2, 28.65)))
	if err != nil {
		t.Fatalf("create p2: %v", err)
	}
	if _, err := repo.Create(ctx, newNinja("Nowhere", "nowhere@ninjago.io", nil)); err != nil {
		t.Fatalf("create unlocated: %v", err)
	}

	rows, err := repo.Nearest(ctx, ninja.NearQuery{Lng: 77.2, Lat: 28.6, MaxDistance: geo.DefaultMaxDistance})
	if err != nil {
		t.Fatalf("Nearest error: %v", err)
	}

	if len(rows) != 2 || rows[0].ID != p1.ID || rows[1].ID != p2.ID {
		t.Fatalf("expected [P1 P2], got %+v", rows)
	}

	want := geo.DistanceMeters(77.2, 28.6, 77.2, 28.616)
	if math.Abs(rows[0].DistanceMeters-want) > 1 {
		t.Fatalf("P1 distance: got %f, want about %f", rows[0].DistanceMeters, want)
	}

	rows, err = repo.Nearest(ctx, ninja.NearQuery{Lng: 77.2, Lat: 28.6, MaxDistance: 3000})
	if err != nil {
		t.Fatalf("Nearest error: %v", err)
	}

	if len(rows) != 1 || rows[0].ID != p1.ID {
		t.Fatalf("expected only P1 within 3 km, got %+v", rows)
	}
}

func TestNinjasRepo_UpdateAndDelete(t *testing.T) {
	pool := setupPool(t)
	repo := postgres.NewNinjasRepo(pool, nil)
	ctx := context.Background()

	kai, err := repo.Create(ctx, newNinja("Kai", "kai@ninjago.io", ninja.NewPoint(-80, 25)))
	if err != nil {
		t.Fatalf("create kai: %v", err)
	}
	if _, err := repo.Create(ctx, newNinja("Zane", "zane@ninjago.io", nil)); err != nil {
		t.Fatalf("create zane: %v", err)
	}

	rank := "black belt"
	got, err := repo.Update(ctx, kai.ID, ninja.Changes{Rank: &rank})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	if got.Rank != "black belt" || got.Name != "Kai" || got.Geometry == nil || got.Geometry.Lng() != -80 {
		t.Fatalf("partial update lost fields: %+v", got)
	}

	taken := "zane@ninjago.io"
	if _, err := repo.Update(ctx, kai.ID, ninja.Changes{Email: &taken}); !errors.Is(err, ninja.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := repo.Create(ctx, newNinja("Kai again", "kai@ninjago.io", nil)); !errors.Is(err, ninja.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken on create, got %v", err)
	}

	unknown := "00000000-0000-0000-0000-000000000000"

	if _, err := repo.Update(ctx, unknown, ninja.Changes{Rank: &rank}); !errors.Is(err, ninja.ErrNotFound) {
		t.Fatalf("update unknown: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ninja.ErrNotFound) {
		t.Fatalf("get malformed: expected ErrNotFound, got %v", err)
	}

	deleted, err := repo.Delete(ctx, kai.ID)
	if err != nil || deleted.ID != kai.ID {
		t.Fatalf("Delete: %+v %v", deleted, err)
	}
	if _, err := repo.Delete(ctx, kai.ID); !errors.Is(err, ninja.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestUsersRepo_CreateAndGet(t *testing.T) {
	pool := setupPool(t)
	repo := postgres.NewUsersRepo(pool, nil)
	ctx := context.Background()

	created, err := repo.Create(ctx, user.CreateParams{Name: "Kai", Email: " Kai@NinjaGo.io ", PasswordHash: "hash"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := repo.GetByEmail(ctx, "kai@ninjago.io")
	if err != nil {
		t.Fatalf("GetByEmail error: %v", err)
	}
	if got.ID != created.ID || got.Role != user.DefaultRole {
		t.Fatalf("unexpected user: %+v", got)
	}

	if _, err := repo.Create(ctx, user.CreateParams{Name: "Kai", Email: "kai@ninjago.io", PasswordHash: "hash"}); !errors.Is(err, user.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, err := repo.GetByEmail(ctx, "nobody@ninjago.io"); !errors.Is(err, user.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobsRepo_ClaimIsExclusive(t *testing.T) {
	pool := setupPool(t)
	repo := postgres.NewJobsRepo(pool, nil)
	ctx := context.Background()

	created, err := repo.Create(ctx, job.CreateRequest{
		Type:    "user.welcome",
		Payload: json.RawMessage(`{"userId":"u-1"}`),
		RunAt:   time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed []job.Job
	)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			j, err := repo.ClaimNext(ctx, "worker-test")
			if err != nil {
				if !errors.Is(err, job.ErrJobNotFound) {
					t.Errorf("ClaimNext error: %v", err)
				}
				return
			}

			mu.Lock()
			claimed = append(claimed, j)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(claimed) != 1 || claimed[0].ID != created.ID || claimed[0].Status != job.StatusProcessing {
		t.Fatalf("expected exactly one processing claim, got %+v", claimed)
	}

	if err := repo.Reschedule(ctx, created.ID, time.Now().Add(-time.Second), "smtp down"); err != nil {
		t.Fatalf("Reschedule error: %v", err)
	}

	again, err := repo.ClaimNext(ctx, "worker-test")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if again.Attempts != 1 || again.LastError == nil || *again.LastError != "smtp down" {
		t.Fatalf("unexpected rescheduled job: %+v", again)
	}

	if err := repo.MarkDone(ctx, created.ID); err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}
	if _, err := repo.ClaimNext(ctx, "worker-test"); !errors.Is(err, job.ErrJobNotFound) {
		t.Fatalf("expected empty queue, got %v", err)
	}
	if err := repo.MarkDone(ctx, "missing"); !errors.Is(err, job.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
