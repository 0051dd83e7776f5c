package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"

	"gotham_viewer/viewer-go/internal/gotham"
)

func float(v float64) *float64 { return &v }

// boardAPI serves one board with a located target, an unlocated target and
// a reference whose detail fetch fails.
func boardAPI() fakeGotham {
	return fakeGotham{
		collectionFn: func(_ context.Context, _, board string) (*gotham.TargetCollectionResponse, error) {
			if board != "board-1" {
				return nil, &gotham.APIError{StatusCode: 404, Message: "unknown board"}
			}
			return &gotham.TargetCollectionResponse{Collection: &gotham.TargetCollection{
				RID: board,
				Columns: []gotham.TargetColumn{
					{Name: "DRAFT", Targets: []gotham.TargetReference{{TargetRID: "t1"}, {TargetRID: "t2"}}},
					{Name: "DONE", Targets: []gotham.TargetReference{{TargetRID: "gone"}}},
				},
			}}, nil
		},
		targetFn: func(_ context.Context, _, rid string) (*gotham.TargetDetailResponse, error) {
			switch rid {
			case "t1":
				return &gotham.TargetDetailResponse{
					Target: gotham.TargetRecord{
						RID:  "t1",
						Name: "Bridge",
						Location: &gotham.TargetLocation{
							Center: gotham.GeoPoint{Latitude: float(0), Longitude: float(10.5)},
							Radius: 2,
						},
					},
					BaseRevisionID: 7,
				}, nil
			case "t2":
				return &gotham.TargetDetailResponse{Target: gotham.TargetRecord{RID: "t2", Name: "Depot"}}, nil
			default:
				return nil, errors.New("detail unavailable")
			}
		},
	}
}

func loadBoard(t *testing.T, h *Handler, router http.Handler) {
	t.Helper()
	rr := doRequest(t, router, http.MethodPut, "/api/v1/targets/board", `{"rid":"board-1"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	waitFor(t, "board load", func() bool {
		s := h.targets.State()
		return !s.Loading && len(s.Targets) == 2
	})
}

func TestTargets_SelectBoardLoadsAndPlots(t *testing.T) {
	h := newTestHandler(t, boardAPI(), nil)
	router := h.Router()
	loadBoard(t, h, router)

	rr := doRequest(t, router, http.MethodGet, "/api/v1/targets/plot", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var plot struct {
		Markers []struct {
			RID      string  `json:"rid"`
			Latitude float64 `json:"latitude"`
		} `json:"markers"`
		WithoutLocation []struct {
			RID string `json:"rid"`
		} `json:"withoutLocation"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &plot); err != nil {
		t.Fatalf("decode plot: %v", err)
	}
	if len(plot.Markers) != 1 || plot.Markers[0].RID != "t1" || plot.Markers[0].Latitude != 0 {
		t.Fatalf("unexpected markers: %s", rr.Body.String())
	}
	if len(plot.WithoutLocation) != 1 || plot.WithoutLocation[0].RID != "t2" {
		t.Fatalf("unexpected unlocated targets: %s", rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodGet, "/api/v1/targets/plot?format=geojson", "")
	if ct := rr.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rr.Body.String(), `"id":"t1"`) || !strings.Contains(rr.Body.String(), `"coordinates":[10.5,0]`) {
		t.Fatalf("unexpected geojson: %s", rr.Body.String())
	}

	rr = doRequest(t, router, http.MethodGet, "/api/v1/targets/plot?format=kml", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", rr.Code)
	}
}

func TestTargets_BoardFailureIsReported(t *testing.T) {
	h := newTestHandler(t, boardAPI(), nil)
	router := h.Router()

	rr := doRequest(t, router, http.MethodPut, "/api/v1/targets/board", `{"rid":"other"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	waitFor(t, "board error", func() bool { return h.targets.State().TargetsError != nil })

	body := decodeBody(t, doRequest(t, router, http.MethodGet, "/api/v1/targets", ""))
	e, ok := body["targetsError"].(map[string]any)
	if !ok || e["message"] != "unknown board" {
		t.Fatalf("unexpected state: %v", body)
	}
}

func TestTargets_ClearBoard(t *testing.T) {
	h := newTestHandler(t, boardAPI(), nil)
	router := h.Router()
	loadBoard(t, h, router)

	rr := doRequest(t, router, http.MethodPut, "/api/v1/targets/board", `{"rid":""}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if s := h.targets.State(); s.BoardRID != "" || len(s.Targets) != 0 {
		t.Fatalf("expected cleared board, got %+v", s)
	}
}

func TestTargets_LoadWithoutBoard(t *testing.T) {
	h := newTestHandler(t, fakeGotham{}, nil)
	rr := doRequest(t, h.Router(), http.MethodPost, "/api/v1/targets/load", "")
	if rr.Code != http.StatusConflict || errorCode(t, rr) != "board_missing" {
		t.Fatalf("expected 409 board_missing, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestTargets_SelectTarget(t *testing.T) {
	h := newTestHandler(t, fakeGotham{}, nil)
	rr := doRequest(t, h.Router(), http.MethodPut, "/api/v1/targets/selected", `{"rid":"t1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["selectedRid"] != "t1" {
		t.Fatalf("unexpected state: %v", body)
	}
}

func TestTargets_CreateTemplate(t *testing.T) {
	h := newTestHandler(t, boardAPI(), nil)
	router := h.Router()
	loadBoard(t, h, router)

	rr := doRequest(t, router, http.MethodGet, "/api/v1/targets/create?lat=10.25&lon=-20", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	want := map[string]any{
		"targetBoardId":          "board-1",
		"classificationMarkings": "MU",
		"latitude":               "10.25",
		"longitude":              "-20",
		"radius":                 "1.0",
		"column":                 "DRAFT",
		"observationTimestamp":   "2024-05-01T12:30:00Z",
		"name":                   "",
	}
	for k, v := range want {
		if body[k] != v {
			t.Fatalf("field %s: got %v, want %v", k, body[k], v)
		}
	}
}

func TestTargets_TemplateRejectsBadCoordinates(t *testing.T) {
	h := newTestHandler(t, fakeGotham{}, nil)
	router := h.Router()

	for _, q := range []string{"lat=abc&lon=1", "lat=95&lon=1", "lat=1&lon=181", "lat=1", "lat=NaN&lon=1"} {
		rr := doRequest(t, router, http.MethodGet, "/api/v1/targets/create?"+q, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rr.Code)
		}
	}
}

func TestTargets_CreateInvalidForm(t *testing.T) {
	var called bool
	h := newTestHandler(t, fakeGotham{
		createFn: func(context.Context, string, gotham.CreateTargetRequest) (gotham.RawResponse, error) {
			called = true
			return nil, nil
		},
	}, nil)

	rr := doRequest(t, h.Router(), http.MethodPost, "/api/v1/targets/create", `{"targetBoardId":"board-1","latitude":"1","longitude":"2"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	e := decodeBody(t, rr)["error"].(map[string]any)
	if e["code"] != "invalid_form" {
		t.Fatalf("unexpected code %v", e["code"])
	}
	raw := e["details"].(map[string]any)["fields"].([]any)
	fields := make([]string, 0, len(raw))
	for _, f := range raw {
		fields = append(fields, f.(string))
	}
	sort.Strings(fields)
	want := []string{"classificationMarkings", "description", "name", "observationTimestamp", "targetType"}
	if strings.Join(fields, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
	if called {
		t.Fatalf("invalid form must not reach upstream")
	}
}

const validCreateForm = `{
	"targetBoardId":"board-1",
	"classificationMarkings":"MU",
	"name":"<b>Bridge</b>",
	"description":"river crossing",
	"targetType":"Infrastructure",
	"observationTimestamp":"2024-05-01T12:30:00Z",
	"latitude":"38.9",
	"longitude":"-77.0",
	"radius":"1.0",
	"column":"DRAFT"
}`

func TestTargets_CreateSubmitsAndRefreshes(t *testing.T) {
	var mu sync.Mutex
	var created []gotham.CreateTargetRequest
	boardFetches := 0

	api := boardAPI()
	collection := api.collectionFn
	api.collectionFn = func(ctx context.Context, token, board string) (*gotham.TargetCollectionResponse, error) {
		mu.Lock()
		boardFetches++
		mu.Unlock()
		return collection(ctx, token, board)
	}
	api.createFn = func(_ context.Context, _ string, req gotham.CreateTargetRequest) (gotham.RawResponse, error) {
		mu.Lock()
		created = append(created, req)
		mu.Unlock()
		return gotham.RawResponse(`{"rid":"t9"}`), nil
	}
	h := newTestHandler(t, api, nil)
	router := h.Router()
	loadBoard(t, h, router)

	rr := doRequest(t, router, http.MethodPost, "/api/v1/targets/create", validCreateForm)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if run := decodeBody(t, rr)["run"].(map[string]any); run["action"] != "create_target" {
		t.Fatalf("unexpected run %v", run)
	}

	waitFor(t, "create response", func() bool { return h.targets.State().CreateResponse != nil })
	waitFor(t, "board refresh", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return boardFetches == 2
	})

	mu.Lock()
	if len(created) != 1 || created[0].Name != "Bridge" || created[0].Collection != "board-1" {
		t.Fatalf("unexpected create requests: %+v", created)
	}
	mu.Unlock()

	body := decodeBody(t, doRequest(t, router, http.MethodGet, "/api/v1/targets", ""))
	if resp, ok := body["createResponse"].(map[string]any); !ok || resp["rid"] != "t9" {
		t.Fatalf("unexpected create response: %v", body)
	}

	rr = doRequest(t, router, http.MethodDelete, "/api/v1/targets/create", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if _, ok := decodeBody(t, rr)["createResponse"]; ok {
		t.Fatalf("expected cleared create response, got %s", rr.Body.String())
	}
}

func TestTargets_CreateUpstreamError(t *testing.T) {
	api := boardAPI()
	api.createFn = func(context.Context, string, gotham.CreateTargetRequest) (gotham.RawResponse, error) {
		return nil, &gotham.APIError{StatusCode: 400, Message: "Collection is read-only"}
	}
	h := newTestHandler(t, api, nil)
	router := h.Router()

	rr := doRequest(t, router, http.MethodPost, "/api/v1/targets/create", validCreateForm)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	waitFor(t, "create error", func() bool { return h.targets.State().CreateError != "" })
	if got := h.targets.State().CreateError; got != "Collection is read-only" {
		t.Fatalf("unexpected create error %q", got)
	}
}

func TestTargets_ObservationTemplate(t *testing.T) {
	h := newTestHandler(t, boardAPI(), nil)
	router := h.Router()

	rr := doRequest(t, router, http.MethodGet, "/api/v1/targets/observations?rid=t1&lat=1&lon=2", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before the board loads, got %d", rr.Code)
	}

	loadBoard(t, h, router)

	rr = doRequest(t, router, http.MethodGet, "/api/v1/targets/observations?rid=t1&lat=1&lon=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["targetId"] != "t1" || body["name"] != "Bridge" || body["baseRevisionId"] != "7" || body["radius"] != "2" {
		t.Fatalf("unexpected template: %v", body)
	}

	rr = doRequest(t, router, http.MethodGet, "/api/v1/targets/observations?lat=1&lon=2", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without rid, got %d", rr.Code)
	}
}

func TestTargets_AddObservation(t *testing.T) {
	var mu sync.Mutex
	var gotRID string
	var gotReq gotham.UpdateTargetRequest

	api := boardAPI()
	api.updateFn = func(_ context.Context, _, rid string, req gotham.UpdateTargetRequest) (gotham.RawResponse, error) {
		mu.Lock()
		gotRID, gotReq = rid, req
		mu.Unlock()
		return nil, nil
	}
	h := newTestHandler(t, api, nil)
	router := h.Router()

	form := `{
		"targetId":"t1",
		"name":"Bridge",
		"observationTimestamp":"2024-05-01T12:30:00Z",
		"latitude":"1.5",
		"longitude":"2.5",
		"radius":"3",
		"elevation":"4",
		"baseRevisionId":"7"
	}`
	rr := doRequest(t, router, http.MethodPost, "/api/v1/targets/observations", form)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	waitFor(t, "observation response", func() bool { return h.targets.State().ObservationResponse != nil })

	mu.Lock()
	defer mu.Unlock()
	if gotRID != "t1" || gotReq.BaseRevisionID != 7 || gotReq.Name != "Bridge" {
		t.Fatalf("unexpected update: rid=%q req=%+v", gotRID, gotReq)
	}
	if lat := gotReq.Location.Center.Latitude; lat == nil || *lat != 1.5 {
		t.Fatalf("unexpected latitude in %+v", gotReq.Location)
	}

	rr = doRequest(t, router, http.MethodDelete, "/api/v1/targets/observations", "")
	if _, ok := decodeBody(t, rr)["observationResponse"]; ok {
		t.Fatalf("expected cleared observation response, got %s", rr.Body.String())
	}
}
