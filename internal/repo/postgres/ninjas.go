package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/geocoder89/ninjafinder/internal/domain/ninja"
	"github.com/geocoder89/ninjafinder/internal/geo"
	"github.com/geocoder89/ninjafinder/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ninjaColumns = []string{
	"id", "name", "email", "password_hash", "rank", "availability", "lng", "lat", "created_at", "updated_at",
}

// great-circle distance in meters from (lng, lat) columns to a bound point; args are lat, lat, lng
var haversineSQL = fmt.Sprintf(
	`2 * %f * ASIN(SQRT(LEAST(1,
		POWER(SIN(RADIANS(lat - ?) / 2), 2) +
		COS(RADIANS(?)) * COS(RADIANS(lat)) * POWER(SIN(RADIANS(lng - ?) / 2), 2)
	)))`,
	geo.EarthRadiusMeters,
)

type NinjasRepo struct {
	pool    *pgxpool.Pool
	prom    *observability.Prom
	builder sq.StatementBuilderType
}

func NewNinjasRepo(pool *pgxpool.Pool, prom *observability.Prom) *NinjasRepo {
	return &NinjasRepo{
		pool:    pool,
		prom:    prom,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (r *NinjasRepo) Create(ctx context.Context, n ninja.Ninja) (ninja.Ninja, error) {
	lng, lat := pointArgs(n.Geometry)

	query, args, err := r.builder.
		Insert("ninjas").
		Columns(ninjaColumns...).
		Values(n.ID, n.Name, n.Email, n.PasswordHash, n.Rank, n.Availability, lng, lat, n.CreatedAt, n.UpdatedAt).
		ToSql()

	if err != nil {
		return ninja.Ninja{}, err
	}

	err = r.prom.ObserveDB("ninjas.create", func() error {
		_, err := r.pool.Exec(ctx, query, args...)
		return err
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return ninja.Ninja{}, ninja.ErrEmailTaken
		}
		return ninja.Ninja{}, err
	}

	return n, nil
}

func (r *NinjasRepo) GetByID(ctx context.Context, id string) (ninja.Ninja, error) {
	if !ninja.ValidID(id) {
		return ninja.Ninja{}, ninja.ErrNotFound
	}

	query, args, err := r.builder.
		Select(ninjaColumns...).
		From("ninjas").
		Where(sq.Eq{"id": id}).
		ToSql()

	if err != nil {
		return ninja.Ninja{}, err
	}

	var n ninja.Ninja

	err = r.prom.ObserveDB("ninjas.get_by_id", func() error {
		return scanNinja(r.pool.QueryRow(ctx, query, args...), &n)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ninja.Ninja{}, ninja.ErrNotFound
		}
		return ninja.Ninja{}, err
	}

	return n, nil
}

// Update applies only the fields present in c and returns the stored row.
func (r *NinjasRepo) Update(ctx context.Context, id string, c ninja.Changes) (ninja.Ninja, error) {
	if !ninja.ValidID(id) {
		return ninja.Ninja{}, ninja.ErrNotFound
	}

	query, args, err := r.updateQuery(id, c)

	if err != nil {
		return ninja.Ninja{}, err
	}

	var n ninja.Ninja

	err = r.prom.ObserveDB("ninjas.update", func() error {
		return scanNinja(r.pool.QueryRow(ctx, query, args...), &n)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ninja.Ninja{}, ninja.ErrNotFound
		}
		if IsUniqueViolation(err) {
			return ninja.Ninja{}, ninja.ErrEmailTaken
		}
		return ninja.Ninja{}, err
	}

	return n, nil
}

// Delete removes the ninja and returns the row as it was.
func (r *NinjasRepo) Delete(ctx context.Context, id string) (ninja.Ninja, error) {
	if !ninja.ValidID(id) {
		return ninja.Ninja{}, ninja.ErrNotFound
	}

	query, args, err := r.builder.
		Delete("ninjas").
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns()).
		ToSql()

	if err != nil {
		return ninja.Ninja{}, err
	}

	var n ninja.Ninja

	err = r.prom.ObserveDB("ninjas.delete", func() error {
		return scanNinja(r.pool.QueryRow(ctx, query, args...), &n)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ninja.Ninja{}, ninja.ErrNotFound
		}
		return ninja.Ninja{}, err
	}

	return n, nil
}

// Nearest returns every located ninja within q.MaxDistance meters, closest first.
// Distance is left unscaled; DistanceMeters carries the raw value.
func (r *NinjasRepo) Nearest(ctx context.Context, q ninja.NearQuery) ([]ninja.Nearby, error) {
	query, args, err := r.nearestQuery(q)

	if err != nil {
		return nil, err
	}

	var out []ninja.Nearby

	err = r.prom.ObserveDB("ninjas.nearest", func() error {
		rows, err := r.pool.Query(ctx, query, args...)

		if err != nil {
			return err
		}

		defer rows.Close()

		out = make([]ninja.Nearby, 0)

		for rows.Next() {
			var nb ninja.Nearby
			var lng, lat float64

			err = rows.Scan(&nb.ID, &nb.Name, &nb.Rank, &nb.Availability, &lng, &lat, &nb.DistanceMeters)

			if err != nil {
				return err
			}

			nb.Geometry = ninja.NewPoint(lng, lat)
			out = append(out, nb)
		}

		return rows.Err()
	})

	if err != nil {
		return nil, err
	}

	return out, nil
}

// updateQuery sets only the columns named by c. updated_at always moves.
func (r *NinjasRepo) updateQuery(id string, c ninja.Changes) (string, []interface{}, error) {
	set := map[string]interface{}{
		"updated_at": sq.Expr("NOW()"),
	}

	if c.Name != nil {
		set["name"] = *c.Name
	}
	if c.Email != nil {
		set["email"] = *c.Email
	}
	if c.PasswordHash != nil {
		set["password_hash"] = *c.PasswordHash
	}
	if c.Rank != nil {
		set["rank"] = *c.Rank
	}
	if c.Availability != nil {
		set["availability"] = *c.Availability
	}
	if c.Geometry != nil {
		set["lng"] = c.Geometry.Lng()
		set["lat"] = c.Geometry.Lat()
	}

	return r.builder.
		Update("ninjas").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
}

func (r *NinjasRepo) nearestQuery(q ninja.NearQuery) (string, []interface{}, error) {
	// inner query keeps '?' placeholders; the outer builder renumbers them
	inner := sq.
		Select("id", "name", "rank", "availability", "lng", "lat").
		Column(sq.Expr(haversineSQL+" AS distance", q.Lat, q.Lat, q.Lng)).
		From("ninjas").
		Where("lng IS NOT NULL AND lat IS NOT NULL")

	return r.builder.
		Select("id", "name", "rank", "availability", "lng", "lat", "distance").
		FromSelect(inner, "d").
		Where(sq.LtOrEq{"distance": q.MaxDistance}).
		OrderBy("distance ASC", "id ASC").
		ToSql()
}

func scanNinja(row pgx.Row, n *ninja.Ninja) error {
	var lng, lat *float64

	err := row.Scan(
		&n.ID,
		&n.Name,
		&n.Email,
		&n.PasswordHash,
		&n.Rank,
		&n.Availability,
		&lng,
		&lat,
		&n.CreatedAt,
		&n.UpdatedAt,
	)

	if err != nil {
		return err
	}

	if lng != nil && lat != nil {
		n.Geometry = ninja.NewPoint(*lng, *lat)
	}

	return nil
}

func pointArgs(p *ninja.Point) (lng, lat *float64) {
	if p == nil {
		return nil, nil
	}
	x, y := p.Lng(), p.Lat()
	return &x, &y
}

func joinColumns() string {
	return strings.Join(ninjaColumns, ", ")
}
