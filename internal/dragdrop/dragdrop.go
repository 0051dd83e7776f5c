// Package dragdrop decodes the drag-and-drop payloads that carry map and
// layer identifiers out of Gaia.
package dragdrop

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	MapArtifactMIME = "application/x-vnd.palantir.rid.gotham-artifact.artifact"
	LayerListMIME   = "gaia-app/layers-list"
)

var (
	errEmpty       = errors.New("empty payload")
	errNotMapList  = errors.New("expected a JSON array whose first element is a non-empty string")
	errNotLayerRef = errors.New(`expected {"type":"layers","id":<non-empty string>}`)
)

// PayloadError is a rejected drop. Toast is the message shown to the user.
type PayloadError struct {
	MIME  string
	Toast string
	Err   error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid %s drag payload: %v", e.MIME, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

func invalid(mime string, err error) *PayloadError {
	return &PayloadError{
		MIME:  mime,
		Toast: fmt.Sprintf("Invalid drag payload. Payload must contain '%s'. Drag a Gaia map from the title.", mime),
		Err:   err,
	}
}

// ParseMapArtifact extracts the map id from a gotham artifact drag payload.
func ParseMapArtifact(data string) (string, error) {
	if strings.TrimSpace(data) == "" {
		return "", invalid(MapArtifactMIME, errEmpty)
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return "", invalid(MapArtifactMIME, err)
	}
	if len(items) == 0 {
		return "", invalid(MapArtifactMIME, errNotMapList)
	}
	var id string
	if err := json.Unmarshal(items[0], &id); err != nil || id == "" {
		return "", invalid(MapArtifactMIME, errNotMapList)
	}
	return id, nil
}

type layerRef struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id"`
}

// ParseLayerList extracts the layer id from a layers-list drag payload.
func ParseLayerList(data string) (string, error) {
	if strings.TrimSpace(data) == "" {
		return "", invalid(LayerListMIME, errEmpty)
	}
	var ref layerRef
	if err := json.Unmarshal([]byte(data), &ref); err != nil {
		return "", invalid(LayerListMIME, err)
	}
	if ref.Type != "layers" || len(ref.ID) == 0 {
		return "", invalid(LayerListMIME, errNotLayerRef)
	}
	var id string
	if err := json.Unmarshal(ref.ID, &id); err != nil || id == "" {
		return "", invalid(LayerListMIME, errNotLayerRef)
	}
	return id, nil
}

// Kind says which identifier a drop carried.
type Kind int

const (
	KindMap Kind = iota + 1
	KindLayer
)

// Parse dispatches on mime. Unknown types are rejected with the toast of
// the map artifact field.
func Parse(mime, data string) (Kind, string, error) {
	switch mime {
	case MapArtifactMIME:
		id, err := ParseMapArtifact(data)
		return KindMap, id, err
	case LayerListMIME:
		id, err := ParseLayerList(data)
		return KindLayer, id, err
	default:
		return 0, "", invalid(MapArtifactMIME, fmt.Errorf("unsupported type %q", mime))
	}
}
