package targetgw

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/rs/zerolog"

	"gotham_viewer/viewer-go/internal/geometry"
	"gotham_viewer/viewer-go/internal/gotham"
	"gotham_viewer/viewer-go/internal/sequence"
)

func TestSelectBoard_topLevelColumnsAndNullLocationThroughClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/multipass/api/oauth2/token", httphelpers.HandlerWithJSONResponse(map[string]any{
		"access_token": "tok",
		"token_type":   "bearer",
		"expires_in":   3600,
	}, nil))
	mux.Handle("/api/gotham/v1/cosmos/targetCollection/board-1", httphelpers.HandlerWithJSONResponse(
		json.RawMessage(`{"columns":[{"name":"DRAFT","targets":[{"targetRid":"t1"}]}]}`), nil))
	mux.Handle("/api/gotham/v1/cosmos/target/t1", httphelpers.HandlerWithJSONResponse(
		json.RawMessage(`{"target":{"rid":"t1","name":"Depot","location":null},"baseRevisionId":1}`), nil))

	httphelpers.WithServer(mux, func(ts *httptest.Server) {
		client, err := gotham.New(zerolog.Nop(), gotham.Options{
			BaseURL:           ts.URL,
			ClientID:          "id",
			ClientSecret:      "secret",
			Timeout:           2 * time.Second,
			RequestsPerSecond: 1000,
			Burst:             100,
		}, nil)
		if err != nil {
			t.Fatalf("gotham.New: %v", err)
		}
		c := New(zerolog.Nop(), client, nil, Options{})
		defer c.Close()

		if got := wait(t, c.SelectBoard("board-1")); got != sequence.Completed {
			t.Fatalf("expected completed, got %s", got)
		}

		s := c.State()
		if len(s.Targets) != 1 {
			t.Fatalf("expected one target, got %+v", s.Targets)
		}
		target := s.Targets[0]
		if target.RID != "t1" || target.Column != "DRAFT" || target.Location != nil || target.BaseRevisionID != 1 {
			t.Fatalf("unexpected target: %+v", target)
		}

		plot := geometry.PartitionTargets(s.Targets)
		if len(plot.Markers) != 0 {
			t.Fatalf("expected no markers, got %+v", plot.Markers)
		}
		if len(plot.WithoutLocation) != 1 || plot.WithoutLocation[0].RID != "t1" {
			t.Fatalf("expected t1 without location, got %+v", plot.WithoutLocation)
		}
	})
}
