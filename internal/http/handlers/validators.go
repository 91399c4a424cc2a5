package handlers

import (
	"reflect"
	"sync"

	"github.com/geocoder89/ninjafinder/internal/geo"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var registerOnce sync.Once

// RegisterValidators adds the custom binding rules to gin's validator engine.
// Safe to call more than once.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		_ = v.RegisterValidation("notblank", validators.NotBlank)
		_ = v.RegisterValidation("lnglat", validateLngLat)
	})
}

// validateLngLat accepts a two element [lng, lat] slice within range.
func validateLngLat(fl validator.FieldLevel) bool {
	f := fl.Field()

	if f.Kind() != reflect.Slice || f.Len() != 2 {
		return false
	}

	lng, ok := floatAt(f, 0)
	if !ok {
		return false
	}
	lat, ok := floatAt(f, 1)
	if !ok {
		return false
	}

	return geo.ValidLngLat(lng, lat)
}

func floatAt(f reflect.Value, i int) (float64, bool) {
	e := f.Index(i)

	switch e.Kind() {
	case reflect.Float32, reflect.Float64:
		return e.Float(), true
	default:
		return 0, false
	}
}
