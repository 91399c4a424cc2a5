package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON decodes and validates the body into out. On failure it has already
// answered 400 (or 413 for oversized bodies) and the handler must return.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	RegisterValidators()

	err := ctx.ShouldBindJSON(out)

	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(ctx, http.StatusRequestEntityTooLarge, "body_too_large", "Request body too large", nil)
			return false
		}

		RespondBadRequest(ctx, "Invalid request body", bindErrorDetails(err, out))

		return false
	}

	return true
}

// bindErrorDetails turns a bind failure into the details object of a 400.
func bindErrorDetails(err error, out interface{}) interface{} {
	var (
		invalid    validator.ValidationErrors
		syntaxErr  *json.SyntaxError
		mismatched *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &invalid):
		root := reflect.TypeOf(out)
		fields := make([]FieldError, 0, len(invalid))

		for _, fe := range invalid {
			fields = append(fields, FieldError{
				Field:   jsonFieldPath(root, fe.StructNamespace()),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}

		return gin.H{"fields": fields}

	case errors.Is(err, io.EOF):
		return gin.H{"json": "empty_body"}

	case errors.As(err, &syntaxErr):
		return gin.H{"json": "invalid_json_syntax"}

	case errors.As(err, &mismatched):
		// encoding/json already reports the path in JSON key names
		field := strings.TrimSpace(mismatched.Field)

		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: "must be of type " + mismatched.Type.String(),
			}},
		}
	}

	return gin.H{"reason": err.Error()}
}

// jsonFieldPath rewrites a validator namespace such as
// "CreateNinjaRequest.Geometry.Coordinates[1]" as "geometry.coordinates[1]".
func jsonFieldPath(root reflect.Type, namespace string) string {
	parts := strings.Split(namespace, ".")

	// the first segment names the root struct itself
	if len(parts) > 1 {
		parts = parts[1:]
	}

	t := elemType(root)
	out := make([]string, 0, len(parts))

	for _, part := range parts {
		name, index, _ := strings.Cut(part, "[")
		if index != "" {
			index = "[" + index
		}

		key := name
		var next reflect.Type

		if t != nil && t.Kind() == reflect.Struct {
			if sf, ok := t.FieldByName(name); ok {
				key = jsonKey(sf)
				next = sf.Type
			}
		}

		out = append(out, key+index)
		t = elemType(next)
	}

	return strings.Join(out, ".")
}

func jsonKey(sf reflect.StructField) string {
	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")

	if name == "" || name == "-" {
		return sf.Name
	}

	return name
}

// elemType strips pointers, slices and arrays down to the element type.
func elemType(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t
		}
	}

	return nil
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	case "eq":
		return "must be " + param
	case "notblank":
		return "must not be blank"
	case "lnglat":
		return "must be [lng, lat] with lng in [-180,180] and lat in [-90,90]"
	default:
		if param != "" {
			return "failed " + rule + " validation (" + param + ")"
		}
		return "failed " + rule + " validation"
	}
}
