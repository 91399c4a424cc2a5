package ninja

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const PointType = "Point"

var (
	ErrNotFound   = errors.New("ninja not found")
	ErrEmailTaken = errors.New("ninja email already in use")
)

// Point is a GeoJSON point; Coordinates are [lng, lat].
type Point struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func NewPoint(lng, lat float64) *Point {
	return &Point{Type: PointType, Coordinates: []float64{lng, lat}}
}

func (p Point) Lng() float64 { return p.Coordinates[0] }
func (p Point) Lat() float64 { return p.Coordinates[1] }

type Ninja struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Rank         string    `json:"rank"`
	Availability bool      `json:"availability"`
	Geometry     *Point    `json:"geometry,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Nearby is one row of a nearest query. Distance is already scaled to the
// requested unit; DistanceMeters stays internal.
type Nearby struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Rank           string  `json:"rank"`
	Availability   bool    `json:"availability"`
	Geometry       *Point  `json:"geometry"`
	Distance       float64 `json:"distance"`
	DistanceMeters float64 `json:"-"`
}

type NearQuery struct {
	Lng         float64
	Lat         float64
	MaxDistance float64 // meters
}

type GeometryRequest struct {
	Type        string    `json:"type" binding:"omitempty,eq=Point"`
	Coordinates []float64 `json:"coordinates" binding:"required,len=2,lnglat"`
}

func (g *GeometryRequest) Point() *Point {
	if g == nil {
		return nil
	}
	return NewPoint(g.Coordinates[0], g.Coordinates[1])
}

type CreateNinjaRequest struct {
	Name         string           `json:"name" binding:"required,notblank,max=100"`
	Email        string           `json:"email" binding:"required,email"`
	Password     string           `json:"password" binding:"omitempty,min=4,max=40"`
	Rank         string           `json:"rank" binding:"omitempty,max=100"`
	Availability *bool            `json:"availability"`
	Geometry     *GeometryRequest `json:"geometry"`
}

// UpdateNinjaRequest is a partial update: nil fields keep their stored value.
// omitnil (not omitempty) so an explicit "" is still validated.
type UpdateNinjaRequest struct {
	Name         *string          `json:"name" binding:"omitnil,notblank,max=100"`
	Email        *string          `json:"email" binding:"omitnil,email"`
	Password     *string          `json:"password" binding:"omitnil,min=4,max=40"`
	Rank         *string          `json:"rank" binding:"omitnil,max=100"`
	Availability *bool            `json:"availability"`
	Geometry     *GeometryRequest `json:"geometry"`
}

// Changes is what a store applies on update, with the password already hashed.
type Changes struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Rank         *string
	Availability *bool
	Geometry     *Point
}

func (c Changes) Empty() bool {
	return c.Name == nil && c.Email == nil && c.PasswordHash == nil &&
		c.Rank == nil && c.Availability == nil && c.Geometry == nil
}

// Apply merges the changes into n and bumps UpdatedAt.
func (c Changes) Apply(n Ninja, now time.Time) Ninja {
	if c.Name != nil {
		n.Name = *c.Name
	}
	if c.Email != nil {
		n.Email = *c.Email
	}
	if c.PasswordHash != nil {
		n.PasswordHash = *c.PasswordHash
	}
	if c.Rank != nil {
		n.Rank = *c.Rank
	}
	if c.Availability != nil {
		n.Availability = *c.Availability
	}
	if c.Geometry != nil {
		n.Geometry = c.Geometry
	}
	n.UpdatedAt = now
	return n
}

// NewFromCreateRequest builds a ninja from a validated request. passwordHash
// may be empty when the request carried no password.
func NewFromCreateRequest(req CreateNinjaRequest, passwordHash string) Ninja {
	now := time.Now().UTC()

	availability := false
	if req.Availability != nil {
		availability = *req.Availability
	}

	return Ninja{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        NormalizeEmail(req.Email),
		PasswordHash: passwordHash,
		Rank:         req.Rank,
		Availability: availability,
		Geometry:     req.Geometry.Point(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ValidID reports whether id could name a stored ninja.
func ValidID(id string) bool {
	return uuid.Validate(id) == nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
