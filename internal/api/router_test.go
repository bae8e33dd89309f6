package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/datallboy/mediaq/internal/api/controllers"
	"github.com/datallboy/mediaq/internal/app"
	"github.com/datallboy/mediaq/internal/domain"
	"github.com/datallboy/mediaq/internal/infra/config"
	"github.com/datallboy/mediaq/internal/infra/logger"
	"github.com/datallboy/mediaq/internal/store"
	"github.com/labstack/echo/v5"
)

type fakeProcessor struct {
	requested int
}

func (f *fakeProcessor) RunBatch(_ context.Context, n int) int {
	f.requested = n
	return n - 1
}

type testServer struct {
	e     *echo.Echo
	store *store.PersistentStore
	proc  *fakeProcessor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s, err := store.NewPersistentStore(filepath.Join(t.TempDir(), "mediaq.db"))
	if err != nil {
		t.Fatalf("NewPersistentStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	appCtx := app.NewContext(&config.Config{}, logger.Nop())
	appCtx.Store = s

	e := echo.New()
	proc := &fakeProcessor{}
	RegisterRoutes(e, appCtx, proc)
	return &testServer{e: e, store: s, proc: proc}
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestEnqueueHLSAndShow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/jobs/hls",
		`{"episode_id":3,"title":"Demo Show","number":2,"source_url":"https://origin.example/master.m3u8","priority":4}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("enqueue = %d %s", rec.Code, rec.Body.String())
	}
	var created controllers.EnqueuedResponse
	decode(t, rec, &created)

	rec = ts.do(http.MethodGet, "/api/jobs/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("show = %d %s", rec.Code, rec.Body.String())
	}
	var job struct {
		ID         string `json:"id"`
		TargetPath string `json:"target_path"`
		Status     string `json:"status"`
		Priority   int    `json:"priority"`
		Owner      struct {
			Kind      string `json:"kind"`
			EpisodeID int64  `json:"episode_id"`
		} `json:"owner"`
	}
	decode(t, rec, &job)
	if job.ID != created.ID || job.TargetPath != "hls/demo-show/ep-2" || job.Status != "pending" || job.Priority != 4 {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.Owner.Kind != "hls" || job.Owner.EpisodeID != 3 {
		t.Fatalf("unexpected owner %+v", job.Owner)
	}
}

func TestEnqueueImageValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"ok", `{"content_id":1,"title":"A","role":"banner","source_url":"https://cdn.example/a.webp"}`, http.StatusCreated},
		{"bad role", `{"content_id":1,"title":"A","role":"square","source_url":"https://cdn.example/a.jpg"}`, http.StatusBadRequest},
		{"relative url", `{"content_id":1,"title":"A","role":"thumb","source_url":"/a.jpg"}`, http.StatusBadRequest},
		{"no owner", `{"title":"A","role":"thumb","source_url":"https://cdn.example/a.jpg"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/jobs/image", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestShowMissingJob(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/jobs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListFiltersAndStats(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		_, err := ts.store.Enqueue(ctx, domain.EnqueueRequest{
			Owner:      domain.ImageOwner(i),
			SourceURL:  "https://cdn.example/a.jpg",
			TargetPath: "images/a.thumb.jpg",
		})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	if _, err := ts.store.ClaimNext(ctx, "w"); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	rec := ts.do(http.MethodGet, "/api/jobs?status=pending", "")
	var list controllers.JobListResponse
	decode(t, rec, &list)
	if rec.Code != http.StatusOK || list.Count != 2 {
		t.Fatalf("list = %d count %d", rec.Code, list.Count)
	}

	if rec := ts.do(http.MethodGet, "/api/jobs?status=sleeping", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status filter = %d", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/stats", "")
	var stats struct {
		Counts map[string]int `json:"counts"`
		Total  int            `json:"total"`
	}
	decode(t, rec, &stats)
	if stats.Total != 3 || stats.Counts["pending"] != 2 || stats.Counts["in_progress"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestRetryOnlyFailedJobs(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	id, err := ts.store.Enqueue(ctx, domain.EnqueueRequest{
		Owner:      domain.ImageOwner(1),
		SourceURL:  "https://cdn.example/a.jpg",
		TargetPath: "images/a.thumb.jpg",
	})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if rec := ts.do(http.MethodPost, "/api/jobs/"+id+"/retry", ""); rec.Code != http.StatusConflict {
		t.Fatalf("retry of pending job = %d, want 409", rec.Code)
	}

	if _, err := ts.store.ClaimNext(ctx, "w"); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if err := ts.store.Fail(ctx, id, "boom"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	rec := ts.do(http.MethodPost, "/api/jobs/"+id+"/retry", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("retry = %d %s", rec.Code, rec.Body.String())
	}
	var created controllers.EnqueuedResponse
	decode(t, rec, &created)
	if created.ID == id {
		t.Fatal("retry reused the failed job id")
	}
}

func TestProcessRunsBatch(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/process?n=5", "")
	var resp controllers.ProcessResponse
	decode(t, rec, &resp)
	if rec.Code != http.StatusOK || ts.proc.requested != 5 || resp.Processed != 4 {
		t.Fatalf("process = %d %+v (requested %d)", rec.Code, resp, ts.proc.requested)
	}

	if rec := ts.do(http.MethodPost, "/api/process?n=0", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("n=0 = %d, want 400", rec.Code)
	}
}
