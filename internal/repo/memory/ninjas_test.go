package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/ninjafinder/internal/domain/ninja"
	"github.com/geocoder89/ninjafinder/internal/geo"
)

func strPtr(s string) *string { return &s }

func seed(t *testing.T, r *NinjasRepo, name, email string, p *ninja.Point) ninja.Ninja {
	t.Helper()

	n := ninja.NewFromCreateRequest(ninja.CreateNinjaRequest{Name: name, Email: email}, "")
	n.Geometry = p

	created, err := r.Create(context.Background(), n)
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return created
}

func TestNearest_OrdersByDistance(t *testing.T) {
	r := NewNinjasRepo()

	// roughly 5 km, 1 km and no location from (0, 0), inserted out of order
	seed(t, r, "far", "far@ninjago.io", ninja.NewPoint(0, 0.045))
	seed(t, r, "near", "near@ninjago.io", ninja.NewPoint(0, 0.009))
	seed(t, r, "nowhere", "nowhere@ninjago.io", nil)

	got, err := r.Nearest(context.Background(), ninja.NearQuery{Lng: 0, Lat: 0, MaxDistance: geo.DefaultMaxDistance})
	if err != nil {
		t.Fatalf("Nearest error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 located ninjas, got %d", len(got))
	}
	if got[0].Name != "near" || got[1].Name != "far" {
		t.Fatalf("unexpected order: %s, %s", got[0].Name, got[1].Name)
	}
	if got[0].DistanceMeters >= got[1].DistanceMeters {
		t.Fatalf("distances not increasing: %v, %v", got[0].DistanceMeters, got[1].DistanceMeters)
	}
}

func TestNearest_RespectsMaxDistance(t *testing.T) {
	r := NewNinjasRepo()

	seed(t, r, "near", "near@ninjago.io", ninja.NewPoint(0, 0.009))
	seed(t, r, "far", "far@ninjago.io", ninja.NewPoint(0, 0.045))

	got, err := r.Nearest(context.Background(), ninja.NearQuery{Lng: 0, Lat: 0, MaxDistance: 2000})
	if err != nil {
		t.Fatalf("Nearest error: %v", err)
	}

	if len(got) != 1 || got[0].Name != "near" {
		t.Fatalf("expected only the near ninja, got %+v", got)
	}
}

func TestCreate_DuplicateEmail(t *testing.T) {
	r := NewNinjasRepo()
	seed(t, r, "kai", "kai@ninjago.io", nil)

	dup := ninja.NewFromCreateRequest(ninja.CreateNinjaRequest{Name: "kai2", Email: "kai@ninjago.io"}, "")

	if _, err := r.Create(context.Background(), dup); !errors.Is(err, ninja.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUpdate_PartialKeepsOtherFields(t *testing.T) {
	r := NewNinjasRepo()
	n := seed(t, r, "kai", "kai@ninjago.io", ninja.NewPoint(77.209, 28.6139))

	updated, err := r.Update(context.Background(), n.ID, ninja.Changes{Rank: strPtr("black belt")})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}

	if updated.Rank != "black belt" {
		t.Fatalf("rank not updated: %q", updated.Rank)
	}
	if updated.Name != "kai" || updated.Geometry == nil {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
	if updated.UpdatedAt.Before(n.UpdatedAt) {
		t.Fatalf("updatedAt went backwards")
	}
}

func TestUpdateAndDelete_UnknownID(t *testing.T) {
	r := NewNinjasRepo()

	if _, err := r.Update(context.Background(), "missing", ninja.Changes{}); !errors.Is(err, ninja.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on update, got %v", err)
	}
	if _, err := r.Delete(context.Background(), "missing"); !errors.Is(err, ninja.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestUpdate_EmailCollision(t *testing.T) {
	r := NewNinjasRepo()
	seed(t, r, "kai", "kai@ninjago.io", nil)
	cole := seed(t, r, "cole", "cole@ninjago.io", nil)

	_, err := r.Update(context.Background(), cole.ID, ninja.Changes{Email: strPtr("kai@ninjago.io")})
	if !errors.Is(err, ninja.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	// re-saving your own email is fine
	if _, err := r.Update(context.Background(), cole.ID, ninja.Changes{Email: strPtr("cole@ninjago.io")}); err != nil {
		t.Fatalf("unexpected error re-saving own email: %v", err)
	}
}
