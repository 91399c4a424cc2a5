package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/ninjafinder/internal/domain/ninja"
	"github.com/geocoder89/ninjafinder/internal/geo"
)

// NinjasRepo keeps ninjas in a map and answers nearest queries by scanning.
type NinjasRepo struct {
	mu    sync.RWMutex
	items map[string]ninja.Ninja
}

func NewNinjasRepo() *NinjasRepo {
	return &NinjasRepo{
		items: make(map[string]ninja.Ninja),
	}
}

func (r *NinjasRepo) Create(ctx context.Context, n ninja.Ninja) (ninja.Ninja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailTakenLocked(n.Email, "") {
		return ninja.Ninja{}, ninja.ErrEmailTaken
	}

	r.items[n.ID] = n
	return n, nil
}

func (r *NinjasRepo) GetByID(ctx context.Context, id string) (ninja.Ninja, error) {
	r.mu.RLock()
	n, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return ninja.Ninja{}, ninja.ErrNotFound
	}
	return n, nil
}

func (r *NinjasRepo) Update(ctx context.Context, id string, c ninja.Changes) (ninja.Ninja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return ninja.Ninja{}, ninja.ErrNotFound
	}

	if c.Email != nil && r.emailTakenLocked(*c.Email, id) {
		return ninja.Ninja{}, ninja.ErrEmailTaken
	}

	n = c.Apply(n, time.Now().UTC())
	r.items[id] = n

	return n, nil
}

func (r *NinjasRepo) Delete(ctx context.Context, id string) (ninja.Ninja, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.items[id]
	if !ok {
		return ninja.Ninja{}, ninja.ErrNotFound
	}

	delete(r.items, id)
	return n, nil
}

func (r *NinjasRepo) Nearest(ctx context.Context, q ninja.NearQuery) ([]ninja.Nearby, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ninja.Nearby, 0, len(r.items))

	for _, n := range r.items {
		if n.Geometry == nil {
			continue
		}

		d := geo.DistanceMeters(q.Lng, q.Lat, n.Geometry.Lng(), n.Geometry.Lat())
		if d > q.MaxDistance {
			continue
		}

		out = append(out, ninja.Nearby{
			ID:             n.ID,
			Name:           n.Name,
			Rank:           n.Rank,
			Availability:   n.Availability,
			Geometry:       ninja.NewPoint(n.Geometry.Lng(), n.Geometry.Lat()),
			DistanceMeters: d,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].ID < out[j].ID
	})

	return out, nil
}

func (r *NinjasRepo) emailTakenLocked(email, exceptID string) bool {
	for id, n := range r.items {
		if id != exceptID && n.Email == email {
			return true
		}
	}
	return false
}
