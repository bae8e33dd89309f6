package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/datallboy/mediaq/internal/domain"
	"github.com/datallboy/mediaq/internal/fetch"
	"github.com/datallboy/mediaq/internal/hls"
	"github.com/datallboy/mediaq/internal/infra/logger"
	"github.com/datallboy/mediaq/internal/storage"
	"github.com/datallboy/mediaq/internal/store"
)

type origin struct {
	srv   *httptest.Server
	mu    sync.Mutex
	files map[string][]byte
}

func newOrigin(t *testing.T) *origin {
	t.Helper()
	o := &origin{files: make(map[string][]byte)}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		body, ok := o.files[r.URL.Path]
		o.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(body)
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *origin) put(p, body string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[p] = []byte(body)
}

func (o *origin) url(p string) string { return o.srv.URL + p }

type harness struct {
	store *store.PersistentStore
	root  *storage.Root
	orch  *Orchestrator
}

func newHarness(t *testing.T, remote hls.Remote) *harness {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewPersistentStore(filepath.Join(dir, "mediaq.db"))
	if err != nil {
		t.Fatalf("NewPersistentStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	root, err := storage.NewRoot(filepath.Join(dir, "media"))
	if err != nil {
		t.Fatalf("NewRoot failed: %v", err)
	}
	if remote == nil {
		remote = fetch.New(fetch.Options{Attempts: 1}, logger.Nop())
	}
	orch := NewOrchestrator(s, remote, root, Options{
		PublicBaseURL: "https://media.example/",
		Concurrency:   2,
	}, logger.Nop())
	return &harness{store: s, root: root, orch: orch}
}

func (h *harness) episode(t *testing.T, slug string, number int) int64 {
	t.Helper()
	ctx := context.Background()
	contentID, err := h.store.CreateContentItem(ctx, slug)
	if err != nil {
		t.Fatalf("CreateContentItem failed: %v", err)
	}
	episodeID, err := h.store.CreateEpisode(ctx, contentID, number)
	if err != nil {
		t.Fatalf("CreateEpisode failed: %v", err)
	}
	return episodeID
}

func (h *harness) job(t *testing.T, id string) *domain.DownloadJob {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	return job
}

func TestProcessOneEmptyQueue(t *testing.T) {
	h := newHarness(t, nil)
	if h.orch.ProcessOne(context.Background()) {
		t.Fatal("ProcessOne reported work on an empty queue")
	}
}

func TestProcessOneHLSEndToEnd(t *testing.T) {
	o := newOrigin(t)
	o.put("/demo/master.m3u8", "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nlow/index.m3u8\n")
	o.put("/demo/low/index.m3u8", "#EXTM3U\n#EXT-X-TARGETDURATION:4\n#EXTINF:4.0,\na.ts\n#EXTINF:4.0,\nb.ts\n#EXTINF:4.0,\nc.ts\n#EXT-X-ENDLIST\n")
	for _, name := range []string{"a", "b", "c"} {
		o.put("/demo/low/"+name+".ts", "segment-"+name)
	}

	h := newHarness(t, nil)
	ctx := context.Background()
	episodeID := h.episode(t, "demo", 1)

	jobID, err := EnqueueEpisode(ctx, h.store, episodeID, "Demo", 1, o.url("/demo/master.m3u8"), 0)
	if err != nil {
		t.Fatalf("EnqueueEpisode failed: %v", err)
	}
	if job := h.job(t, jobID); job.TargetPath != "hls/demo/ep-1" {
		t.Fatalf("target path = %q", job.TargetPath)
	}

	if !h.orch.ProcessOne(ctx) {
		t.Fatal("ProcessOne did not claim the job")
	}

	job := h.job(t, jobID)
	if job.Status != domain.StatusCompleted || job.FinishedAt == nil || job.ClaimedBy != h.orch.WorkerID() {
		t.Fatalf("unexpected job %+v", job)
	}

	ep, err := h.store.GetEpisode(ctx, episodeID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if ep.LocalHLSPath != "hls/demo/ep-1" {
		t.Fatalf("local_hls_path = %q", ep.LocalHLSPath)
	}
	if ep.EpisodeURL != "https://media.example/hls/demo/ep-1/index.m3u8" {
		t.Fatalf("episode_url = %q", ep.EpisodeURL)
	}
	if ep.DownloadStatus != domain.StatusCompleted || ep.LastDownloadError != "" {
		t.Fatalf("unexpected episode %+v", ep)
	}

	index, err := h.root.ReadFile("hls/demo/ep-1/index.m3u8")
	if err != nil {
		t.Fatalf("index playlist missing: %v", err)
	}
	for _, name := range []string{"a.ts", "b.ts", "c.ts"} {
		if !strings.Contains(string(index), "\n"+name+"\n") {
			t.Fatalf("index playlist does not reference %s:\n%s", name, index)
		}
		data, err := h.root.ReadFile("hls/demo/ep-1/" + name)
		if err != nil {
			t.Fatalf("segment %s missing: %v", name, err)
		}
		if want := "segment-" + strings.TrimSuffix(name, ".ts"); string(data) != want {
			t.Fatalf("segment %s = %q, want %q", name, data, want)
		}
	}
	if _, err := h.root.ReadFile("hls/demo/ep-1/master.m3u8"); err != nil {
		t.Fatalf("master playlist missing: %v", err)
	}
}

func TestProcessOneHLSManifestFailure(t *testing.T) {
	o := newOrigin(t)
	h := newHarness(t, nil)
	ctx := context.Background()
	episodeID := h.episode(t, "gone", 2)

	jobID, err := EnqueueEpisode(ctx, h.store, episodeID, "Gone", 2, o.url("/gone/master.m3u8"), 0)
	if err != nil {
		t.Fatalf("EnqueueEpisode failed: %v", err)
	}
	if !h.orch.ProcessOne(ctx) {
		t.Fatal("ProcessOne did not claim the job")
	}

	job := h.job(t, jobID)
	if job.Status != domain.StatusFailed || !strings.Contains(job.LastError, "404") {
		t.Fatalf("unexpected job %+v", job)
	}
	ep, err := h.store.GetEpisode(ctx, episodeID)
	if err != nil {
		t.Fatalf("GetEpisode failed: %v", err)
	}
	if ep.DownloadStatus != domain.StatusFailed || ep.LastDownloadError != job.LastError {
		t.Fatalf("unexpected episode %+v", ep)
	}
	if ep.LocalHLSPath != "" || ep.EpisodeURL != "" {
		t.Fatalf("failed episode has playback fields: %+v", ep)
	}
}

func TestProcessOneImage(t *testing.T) {
	o := newOrigin(t)
	o.put("/art/poster.png", "png-bytes")

	h := newHarness(t, nil)
	ctx := context.Background()
	contentID, err := h.store.CreateContentItem(ctx, "a-show")
	if err != nil {
		t.Fatalf("CreateContentItem failed: %v", err)
	}

	jobID, err := EnqueueImage(ctx, h.store, contentID, "A Show", domain.RoleThumb, o.url("/art/poster.png?w=300"), 0)
	if err != nil {
		t.Fatalf("EnqueueImage failed: %v", err)
	}
	if !h.orch.ProcessOne(ctx) {
		t.Fatal("ProcessOne did not claim the job")
	}

	if job := h.job(t, jobID); job.Status != domain.StatusCompleted {
		t.Fatalf("unexpected job %+v", job)
	}
	item, err := h.store.GetContentItem(ctx, contentID)
	if err != nil {
		t.Fatalf("GetContentItem failed: %v", err)
	}
	if item.ThumbnailPath != "images/a-show.thumb.png" || item.ThumbnailURL != "https://media.example/images/a-show.thumb.png" {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.BannerPath != "" {
		t.Fatalf("banner unexpectedly set: %+v", item)
	}
	data, err := h.root.ReadFile("images/a-show.thumb.png")
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("stored image = %q, %v", data, err)
	}
}

func TestProcessOneMissingOwnerFailsJob(t *testing.T) {
	o := newOrigin(t)
	o.put("/art/banner.jpg", "jpg")

	h := newHarness(t, nil)
	ctx := context.Background()

	jobID, err := EnqueueImage(ctx, h.store, 4242, "Nobody", domain.RoleBanner, o.url("/art/banner.jpg"), 0)
	if err != nil {
		t.Fatalf("EnqueueImage failed: %v", err)
	}
	h.orch.ProcessOne(ctx)

	job := h.job(t, jobID)
	if job.Status != domain.StatusFailed || !strings.Contains(job.LastError, domain.ErrNotFound.Error()) {
		t.Fatalf("unexpected job %+v", job)
	}
}

type panickingRemote struct{}

func (panickingRemote) Text(context.Context, string) (string, error) { panic("text exploded") }
func (panickingRemote) Bytes(context.Context, string) ([]byte, error) {
	panic("bytes exploded")
}

func TestProcessOneRecoversPanics(t *testing.T) {
	h := newHarness(t, panickingRemote{})
	ctx := context.Background()
	contentID, err := h.store.CreateContentItem(ctx, "boom")
	if err != nil {
		t.Fatalf("CreateContentItem failed: %v", err)
	}

	jobID, err := EnqueueImage(ctx, h.store, contentID, "Boom", domain.RoleThumb, "https://cdn.example/boom.jpg", 0)
	if err != nil {
		t.Fatalf("EnqueueImage failed: %v", err)
	}
	if !h.orch.ProcessOne(ctx) {
		t.Fatal("ProcessOne did not claim the job")
	}

	job := h.job(t, jobID)
	if job.Status != domain.StatusFailed || !strings.Contains(job.LastError, "bytes exploded") {
		t.Fatalf("unexpected job %+v", job)
	}
}

// cancellingRemote cancels the caller's context as soon as the job starts
// fetching, the way a shutdown signal would.
type cancellingRemote struct {
	hls.Remote
	cancel context.CancelFunc
}

func (r cancellingRemote) Bytes(ctx context.Context, url string) ([]byte, error) {
	r.cancel()
	return r.Remote.Bytes(ctx, url)
}

func TestProcessOneFinishesClaimedJobAfterCancel(t *testing.T) {
	o := newOrigin(t)
	o.put("/art/poster.jpg", "jpg")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, cancellingRemote{
		Remote: fetch.New(fetch.Options{Attempts: 1}, logger.Nop()),
		cancel: cancel,
	})

	contentID, err := h.store.CreateContentItem(ctx, "late")
	if err != nil {
		t.Fatalf("CreateContentItem failed: %v", err)
	}
	jobID, err := EnqueueImage(ctx, h.store, contentID, "Late", domain.RoleThumb, o.url("/art/poster.jpg"), 0)
	if err != nil {
		t.Fatalf("EnqueueImage failed: %v", err)
	}

	if !h.orch.ProcessOne(ctx) {
		t.Fatal("ProcessOne did not claim the job")
	}
	if ctx.Err() == nil {
		t.Fatal("context was not cancelled during the job")
	}
	if job := h.job(t, jobID); job.Status != domain.StatusCompleted {
		t.Fatalf("job status = %s, last error %q", job.Status, job.LastError)
	}
}

func TestRunBatchAndDrain(t *testing.T) {
	o := newOrigin(t)
	h := newHarness(t, nil)
	ctx := context.Background()

	const total = 7
	for i := 0; i < total; i++ {
		o.put(fmt.Sprintf("/art/%d.jpg", i), "jpg")
		contentID, err := h.store.CreateContentItem(ctx, fmt.Sprintf("show-%d", i))
		if err != nil {
			t.Fatalf("CreateContentItem failed: %v", err)
		}
		if _, err := EnqueueImage(ctx, h.store, contentID, fmt.Sprintf("Show %d", i), domain.RoleBanner, o.url(fmt.Sprintf("/art/%d.jpg", i)), 0); err != nil {
			t.Fatalf("EnqueueImage failed: %v", err)
		}
	}

	if n := h.orch.RunBatch(ctx, 3); n != 3 {
		t.Fatalf("RunBatch processed %d, want 3", n)
	}
	if n := h.orch.Drain(ctx, 3); n != total-3 {
		t.Fatalf("Drain processed %d, want %d", n, total-3)
	}

	stats, err := h.store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[domain.StatusCompleted] != total || stats[domain.StatusPending] != 0 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestEnqueueImageRejectsUnknownRole(t *testing.T) {
	h := newHarness(t, nil)
	_, err := EnqueueImage(context.Background(), h.store, 1, "X", domain.ImageRole("square"), "https://cdn.example/x.jpg", 0)
	if !errors.Is(err, domain.ErrUnknownRole) {
		t.Fatalf("EnqueueImage = %v, want ErrUnknownRole", err)
	}
}
