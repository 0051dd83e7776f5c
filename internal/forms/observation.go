package forms

import (
	"strconv"
	"strings"
	"time"

	"gotham_viewer/viewer-go/internal/gotham"
)

// ObservationForm holds the raw inputs of the add-observation form.
type ObservationForm struct {
	TargetID             string `json:"targetId" validate:"required"`
	Name                 string `json:"name"`
	ObservationTimestamp string `json:"observationTimestamp" validate:"required"`
	Latitude             string `json:"latitude" validate:"required"`
	Longitude            string `json:"longitude" validate:"required"`
	Radius               string `json:"radius"`
	Elevation            string `json:"elevation"`
	BaseRevisionID       string `json:"baseRevisionId"`
}

// NewObservationForm returns the form prefilled for target at a clicked position.
func NewObservationForm(target gotham.Target, lat, lon float64, now time.Time) ObservationForm {
	f := ObservationForm{
		TargetID:             target.RID,
		Name:                 target.Name,
		ObservationTimestamp: now.UTC().Format(time.RFC3339),
		Latitude:             formatFloat(lat),
		Longitude:            formatFloat(lon),
		Radius:               DefaultRadius,
		Elevation:            DefaultElevation,
		BaseRevisionID:       strconv.FormatInt(target.BaseRevisionID, 10),
	}
	if loc := target.Location; loc != nil {
		f.Radius = formatFloat(loc.Radius)
		f.Elevation = formatFloat(loc.Elevation)
	}
	return f
}

func (f *ObservationForm) trim() {
	f.TargetID = strings.TrimSpace(f.TargetID)
	f.Name = strings.TrimSpace(f.Name)
	f.ObservationTimestamp = strings.TrimSpace(f.ObservationTimestamp)
	f.Latitude = strings.TrimSpace(f.Latitude)
	f.Longitude = strings.TrimSpace(f.Longitude)
	f.Radius = strings.TrimSpace(f.Radius)
	f.Elevation = strings.TrimSpace(f.Elevation)
	f.BaseRevisionID = strings.TrimSpace(f.BaseRevisionID)
}

// Submit validates the form and returns the target rid and the update
// request that records the observation.
func (f ObservationForm) Submit() (string, gotham.UpdateTargetRequest, error) {
	f.trim()
	verr := &ValidationError{}
	if err := checkRequired(f, verr); err != nil {
		return "", gotham.UpdateTargetRequest{}, err
	}

	lat, lon := parseCoordinates(f.Latitude, f.Longitude, verr)
	radius := parseNumber("radius", f.Radius, 1.0, "gte=0", verr)
	elevation := parseNumber("elevation", f.Elevation, 0, "", verr)
	revision, err := strconv.ParseInt(f.BaseRevisionID, 10, 64)
	if err != nil {
		verr.flag("baseRevisionId")
	}
	if !verr.empty() {
		return "", gotham.UpdateTargetRequest{}, verr
	}

	return f.TargetID, gotham.UpdateTargetRequest{
		Name:           sanitize(f.Name),
		BaseRevisionID: revision,
		Location: gotham.TargetLocation{
			Center: gotham.GeoPoint{Latitude: &lat, Longitude: &lon, Elevation: &elevation},
			Radius: radius,
		},
	}, nil
}
