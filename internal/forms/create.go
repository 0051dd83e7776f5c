package forms

import (
	"strings"
	"time"

	"gotham_viewer/viewer-go/internal/gotham"
)

const (
	DefaultColumn     = "DRAFT"
	DefaultMarkings   = "MU"
	DefaultRadius     = "1.0"
	DefaultElevation  = "0"
	DefaultTargetType = "Unknown"
)

// CreateTargetForm holds the raw inputs of the create-target form.
type CreateTargetForm struct {
	TargetBoardID          string `json:"targetBoardId" validate:"required"`
	ClassificationMarkings string `json:"classificationMarkings" validate:"required"`
	Name                   string `json:"name" validate:"required"`
	Description            string `json:"description" validate:"required"`
	TargetType             string `json:"targetType" validate:"required"`
	ObservationTimestamp   string `json:"observationTimestamp" validate:"required"`
	Latitude               string `json:"latitude" validate:"required"`
	Longitude              string `json:"longitude" validate:"required"`
	Radius                 string `json:"radius"`
	Column                 string `json:"column"`
}

// NewCreateTargetForm returns the form prefilled for a click at lat/lon on board.
func NewCreateTargetForm(board string, lat, lon float64, now time.Time) CreateTargetForm {
	return CreateTargetForm{
		TargetBoardID:          board,
		ClassificationMarkings: DefaultMarkings,
		ObservationTimestamp:   now.UTC().Format(time.RFC3339),
		Latitude:               formatFloat(lat),
		Longitude:              formatFloat(lon),
		Radius:                 DefaultRadius,
		Column:                 DefaultColumn,
	}
}

func (f *CreateTargetForm) trim() {
	f.TargetBoardID = strings.TrimSpace(f.TargetBoardID)
	f.ClassificationMarkings = strings.TrimSpace(f.ClassificationMarkings)
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.TargetType = strings.TrimSpace(f.TargetType)
	f.ObservationTimestamp = strings.TrimSpace(f.ObservationTimestamp)
	f.Latitude = strings.TrimSpace(f.Latitude)
	f.Longitude = strings.TrimSpace(f.Longitude)
	f.Radius = strings.TrimSpace(f.Radius)
	f.Column = strings.TrimSpace(f.Column)
}

// Submit validates the form and builds the create request. A failed
// validation returns *ValidationError and no request. The observation
// timestamp is required but not sent; the create endpoint has no field for it.
func (f CreateTargetForm) Submit() (gotham.CreateTargetRequest, error) {
	f.trim()
	verr := &ValidationError{}
	if err := checkRequired(f, verr); err != nil {
		return gotham.CreateTargetRequest{}, err
	}

	lat, lon := parseCoordinates(f.Latitude, f.Longitude, verr)
	radius := parseNumber("radius", f.Radius, 1.0, "gte=0", verr)
	markings := splitMarkings(f.ClassificationMarkings)
	if len(markings) == 0 {
		verr.flag("classificationMarkings")
	}
	name := sanitize(f.Name)
	if name == "" {
		verr.flag("name")
	}
	if !verr.empty() {
		return gotham.CreateTargetRequest{}, verr
	}

	column := f.Column
	if column == "" {
		column = DefaultColumn
	}
	targetType := sanitize(f.TargetType)
	if targetType == "" {
		targetType = DefaultTargetType
	}

	return gotham.CreateTargetRequest{
		Name:       name,
		Collection: f.TargetBoardID,
		Column:     column,
		Location: gotham.TargetLocation{
			Center: gotham.GeoPoint{Latitude: &lat, Longitude: &lon},
			Radius: radius,
		},
		Security:    gotham.Security{PortionMarkings: markings},
		TargetType:  targetType,
		Description: sanitize(f.Description),
	}, nil
}
