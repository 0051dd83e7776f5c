// Package forms validates and coerces the string inputs of the create-target
// and add-observation forms into typed Gotham payloads.
package forms

import (
	"errors"
	"html"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

// ValidationError reports which form fields are invalid, keyed by their
// JSON field name.
type ValidationError struct {
	Fields map[string]bool `json:"fields"`
}

func (e *ValidationError) Error() string {
	return "invalid form fields: " + strings.Join(e.Names(), ", ")
}

// Names returns the invalid field names in sorted order.
func (e *ValidationError) Names() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *ValidationError) flag(names ...string) {
	if e.Fields == nil {
		e.Fields = make(map[string]bool)
	}
	for _, n := range names {
		e.Fields[n] = true
	}
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

var (
	validate  = newValidator()
	sanitizer = bluemonday.StrictPolicy()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkRequired flags every field whose `required` tag fails.
func checkRequired(form any, verr *ValidationError) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	for _, fe := range fieldErrs {
		verr.flag(fe.Field())
	}
	return nil
}

// parseCoordinates parses a latitude/longitude pair. Any failure flags both
// fields, since the pair is only meaningful together.
func parseCoordinates(lat, lon string, verr *ValidationError) (float64, float64) {
	la, errLat := strconv.ParseFloat(lat, 64)
	lo, errLon := strconv.ParseFloat(lon, 64)
	if errLat != nil || errLon != nil ||
		validate.Var(la, "gte=-90,lte=90") != nil ||
		validate.Var(lo, "gte=-180,lte=180") != nil {
		verr.flag("latitude", "longitude")
	}
	return la, lo
}

// parseNumber parses an optional numeric field, using fallback when empty.
// rules is a validator tag applied to the parsed value.
func parseNumber(field, v string, fallback float64, rules string, verr *ValidationError) float64 {
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || validate.Var(n, rules) != nil {
		verr.flag(field)
	}
	return n
}

// sanitize strips markup from free text. Entities produced by the policy
// are decoded again so plain text like "A&B" survives unchanged.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(sanitizer.Sanitize(s)))
}

// splitMarkings splits a comma separated marking list, dropping blanks.
func splitMarkings(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := sanitize(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
