package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/ninjafinder/internal/domain/ninja"
	"github.com/geocoder89/ninjafinder/internal/geo"
	"github.com/geocoder89/ninjafinder/internal/observability"
	"github.com/geocoder89/ninjafinder/internal/security"
	"github.com/gin-gonic/gin"
)

type NinjaStore interface {
	Create(ctx context.Context, n ninja.Ninja) (ninja.Ninja, error)
	GetByID(ctx context.Context, id string) (ninja.Ninja, error)
	Update(ctx context.Context, id string, c ninja.Changes) (ninja.Ninja, error)
	Delete(ctx context.Context, id string) (ninja.Ninja, error)
	Nearest(ctx context.Context, q ninja.NearQuery) ([]ninja.Nearby, error)
}

type NinjasHandler struct {
	store NinjaStore
	prom  *observability.Prom
	log   *slog.Logger
}

func NewNinjasHandler(store NinjaStore, prom *observability.Prom, log *slog.Logger) *NinjasHandler {
	if log == nil {
		log = slog.Default()
	}

	return &NinjasHandler{store: store, prom: prom, log: log}
}

// Nearby lists ninjas ordered by distance from (lng, lat).
func (h *NinjasHandler) Nearby(ctx *gin.Context) {
	lng, lngErr := parseFloatQuery(ctx, "lng", true)
	lat, latErr := parseFloatQuery(ctx, "lat", true)
	maxDistance, maxErr := parseFloatQuery(ctx, "maxDistance", false)

	fields := make([]FieldError, 0, 3)
	for _, fe := range []*FieldError{lngErr, latErr, maxErr} {
		if fe != nil {
			fields = append(fields, *fe)
		}
	}

	if lngErr == nil && latErr == nil && !geo.ValidLngLat(lng, lat) {
		fields = append(fields, FieldError{
			Field:   "lng,lat",
			Rule:    "lnglat",
			Message: validationMessage("lnglat", ""),
		})
	}

	if maxErr == nil {
		// an empty maxDistance= counts as absent, never as a zero radius
		if raw, _ := ctx.GetQuery("maxDistance"); strings.TrimSpace(raw) == "" {
			maxDistance = geo.DefaultMaxDistance
		} else if maxDistance < 0 {
			fields = append(fields, FieldError{
				Field:   "maxDistance",
				Rule:    "min",
				Param:   "0",
				Message: validationMessage("min", "0"),
			})
		}
	}

	if len(fields) > 0 {
		RespondBadRequest(ctx, "Invalid query parameters", gin.H{"fields": fields})
		return
	}

	unit := geo.Kilometers
	if raw, given := ctx.GetQuery("unit"); given {
		unit = geo.ParseUnit(raw)
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	rows, err := h.store.Nearest(cctx, ninja.NearQuery{
		Lng:         lng,
		Lat:         lat,
		MaxDistance: maxDistance,
	})

	if err != nil {
		h.log.ErrorContext(cctx, "nearest_query_failed", "err", err)
		RespondInternal(ctx, "Could not fetch ninjas")
		return
	}

	for i := range rows {
		rows[i].Distance = unit.Scale(rows[i].DistanceMeters)
	}

	h.prom.ObserveNearby(len(rows))

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(rows),
		"unit":    unit,
		"data":    rows,
	})
}

// parseFloatQuery reads a finite float query parameter. A missing optional
// parameter returns (0, nil).
func parseFloatQuery(ctx *gin.Context, name string, required bool) (float64, *FieldError) {
	raw, ok := ctx.GetQuery(name)
	raw = strings.TrimSpace(raw)

	if !ok || raw == "" {
		if !required {
			return 0, nil
		}
		return 0, &FieldError{Field: name, Rule: "required", Message: validationMessage("required", "")}
	}

	v, err := strconv.ParseFloat(raw, 64)

	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &FieldError{Field: name, Rule: "number", Message: "must be a number"}
	}

	return v, nil
}

func (h *NinjasHandler) GetNinjaByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !ninja.ValidID(id) {
		RespondNotFound(ctx, "Ninja not found")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	n, err := h.store.GetByID(cctx, id)

	if err != nil {
		h.respondStoreError(ctx, cctx, err, "Could not fetch ninja")
		return
	}

	ctx.JSON(http.StatusOK, n)
}

func (h *NinjasHandler) CreateNinja(ctx *gin.Context) {
	var req ninja.CreateNinjaRequest

	if !BindJSON(ctx, &req) {
		return
	}

	hash := ""

	if req.Password != "" {
		var err error

		hash, err = security.HashPassword(req.Password)

		if err != nil {
			h.log.ErrorContext(ctx.Request.Context(), "password_hash_failed", "err", err)
			RespondInternal(ctx, "Could not create ninja")
			return
		}
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	n, err := h.store.Create(cctx, ninja.NewFromCreateRequest(req, hash))

	if err != nil {
		h.respondStoreError(ctx, cctx, err, "Could not create ninja")
		return
	}

	ctx.JSON(http.StatusCreated, n)
}

func (h *NinjasHandler) UpdateNinja(ctx *gin.Context) {
	id := ctx.Param("id")

	var req ninja.UpdateNinjaRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if !ninja.ValidID(id) {
		RespondNotFound(ctx, "Ninja not found")
		return
	}

	changes, err := changesFromRequest(req)

	if err != nil {
		h.log.ErrorContext(ctx.Request.Context(), "password_hash_failed", "err", err)
		RespondInternal(ctx, "Could not update ninja")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	var n ninja.Ninja

	if changes.Empty() {
		n, err = h.store.GetByID(cctx, id)
	} else {
		n, err = h.store.Update(cctx, id, changes)
	}

	if err != nil {
		h.respondStoreError(ctx, cctx, err, "Could not update ninja")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Ninja updated",
		"data":    n,
	})
}

func (h *NinjasHandler) DeleteNinja(ctx *gin.Context) {
	id := ctx.Param("id")

	if !ninja.ValidID(id) {
		RespondNotFound(ctx, "Ninja not found")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	n, err := h.store.Delete(cctx, id)

	if err != nil {
		h.respondStoreError(ctx, cctx, err, "Could not delete ninja")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Ninja deleted successfully",
		"data":    n,
	})
}

func (h *NinjasHandler) respondStoreError(ctx *gin.Context, cctx context.Context, err error, internalMsg string) {
	switch {
	case errors.Is(err, ninja.ErrNotFound):
		RespondNotFound(ctx, "Ninja not found")
	case errors.Is(err, ninja.ErrEmailTaken):
		RespondConflict(ctx, "email_taken", "A ninja with that email already exists")
	default:
		h.log.ErrorContext(cctx, "ninja_store_failed", "err", err)
		RespondInternal(ctx, internalMsg)
	}
}

// changesFromRequest normalises the present fields and hashes a new password.
func changesFromRequest(req ninja.UpdateNinjaRequest) (ninja.Changes, error) {
	c := ninja.Changes{
		Rank:         req.Rank,
		Availability: req.Availability,
		Geometry:     req.Geometry.Point(),
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		c.Name = &name
	}

	if req.Email != nil {
		email := ninja.NormalizeEmail(*req.Email)
		c.Email = &email
	}

	if req.Password != nil {
		hash, err := security.HashPassword(*req.Password)
		if err != nil {
			return ninja.Changes{}, err
		}
		c.PasswordHash = &hash
	}

	return c, nil
}
