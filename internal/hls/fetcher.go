package hls

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/datallboy/mediaq/internal/cache"
	"github.com/datallboy/mediaq/internal/infra/logger"
	"github.com/datallboy/mediaq/internal/storage"
	"github.com/dustin/go-humanize"
)

const (
	IndexPlaylist        = "index.m3u8"
	MasterPlaylistName   = "master.m3u8"
	RemoteMasterPlaylist = "master.remote.m3u8"
)

// Remote is the subset of fetch.Client the fetcher needs.
type Remote interface {
	Text(ctx context.Context, url string) (string, error)
	Bytes(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	MaxVariants    int
	SegmentWorkers int
}

type Outcome string

const (
	OutcomeStored          Outcome = "stored"
	OutcomeStoredEncrypted Outcome = "stored_encrypted"
	OutcomeSkipped         Outcome = "skipped"
)

// SegmentResult records what happened to one segment. LocalName is always
// set, even when the segment was skipped, since the rewritten playlist still
// references it.
type SegmentResult struct {
	LocalName string
	Outcome   Outcome
	Err       error
}

type VariantResult struct {
	Playlist  string
	SourceURL string
	Bandwidth int64
	Bytes     int64
	Duration  float64
	Segments  []SegmentResult
}

type Result struct {
	Dir      string
	Master   bool
	Variants []VariantResult
	Warnings []string
}

// Skipped counts segments that could not be downloaded across all variants.
func (r *Result) Skipped() int {
	n := 0
	for _, v := range r.Variants {
		for _, s := range v.Segments {
			if s.Outcome == OutcomeSkipped {
				n++
			}
		}
	}
	return n
}

type Fetcher struct {
	remote Remote
	root   *storage.Root
	opts   Options
	log    *logger.Logger
}

func NewFetcher(remote Remote, root *storage.Root, opts Options, log *logger.Logger) *Fetcher {
	if opts.MaxVariants <= 0 {
		opts.MaxVariants = 1
	}
	if opts.SegmentWorkers <= 0 {
		opts.SegmentWorkers = 4
	}
	return &Fetcher{remote: remote, root: root, opts: opts, log: log}
}

// FetchAndRewrite mirrors the stream at sourceURL into destDir (relative to
// the storage root) and writes local playlists. Manifest, key and storage
// failures abort; individual segment failures are recorded and tolerated.
func (f *Fetcher) FetchAndRewrite(ctx context.Context, sourceURL, destDir string) (*Result, error) {
	unlock, err := f.root.LockDir(ctx, destDir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	manifest, err := f.remote.Text(ctx, sourceURL)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	var master *MasterPlaylist
	if IsMaster(manifest) {
		master = ParseMaster(manifest)
		if len(master.Variants) == 0 {
			f.log.Warn("[HLS] %s has stream-info tags but no variants; treating as media playlist", sourceURL)
			master = nil
		}
	}

	selected := []VariantRef{{URI: sourceURL}}
	if master != nil {
		selected = SelectVariants(master.Variants, f.opts.MaxVariants)
	}

	res := &Result{Dir: destDir, Master: master != nil}
	keys := cache.NewKeyCache()
	seen := make(map[string]bool)
	local := make(map[int]string, len(selected))
	var primary string

	for n, v := range selected {
		mediaURL, text := sourceURL, manifest
		if master != nil {
			if mediaURL, err = Resolve(sourceURL, v.URI); err != nil {
				return nil, fmt.Errorf("variant uri %q: %w", v.URI, err)
			}
			if text, err = f.remote.Text(ctx, mediaURL); err != nil {
				return nil, fmt.Errorf("variant playlist: %w", err)
			}
		}

		name := playlistName(n, len(selected))
		vr, rendered, err := f.fetchVariant(ctx, n, mediaURL, text, destDir, name, keys, seen, res)
		if err != nil {
			return nil, err
		}
		vr.Bandwidth = v.Bandwidth
		res.Variants = append(res.Variants, *vr)
		local[v.URILine] = name
		if n == 0 {
			primary = rendered
		}
	}

	if len(selected) > 1 {
		if err := f.root.WriteFile(path.Join(destDir, IndexPlaylist), []byte(primary)); err != nil {
			return nil, err
		}
	}

	if master != nil {
		if err := f.root.WriteFile(path.Join(destDir, MasterPlaylistName), []byte(master.Rewrite(local, sourceURL))); err != nil {
			return nil, err
		}
		if err := f.root.WriteFile(path.Join(destDir, RemoteMasterPlaylist), []byte(manifest)); err != nil {
			return nil, err
		}
	} else {
		v := res.Variants[0]
		trivial := TrivialMaster(estimateBandwidth(v.Bytes, v.Duration), IndexPlaylist)
		if err := f.root.WriteFile(path.Join(destDir, MasterPlaylistName), []byte(trivial)); err != nil {
			return nil, err
		}
	}

	var total int64
	segments := 0
	for _, v := range res.Variants {
		total += v.Bytes
		segments += len(v.Segments)
	}
	f.log.Info("[HLS] %s -> %s: %d variant(s), %d segment(s), %d skipped, %s",
		sourceURL, destDir, len(res.Variants), segments, res.Skipped(), humanize.Bytes(uint64(total)))

	return res, nil
}

func (f *Fetcher) fetchVariant(ctx context.Context, n int, mediaURL, text, destDir, name string, keys *cache.KeyCache, seen map[string]bool, res *Result) (*VariantResult, string, error) {
	pl, err := ParseMedia(text)
	if err != nil {
		return nil, "", fmt.Errorf("media playlist %s: %w", mediaURL, err)
	}
	for _, w := range pl.Warnings {
		f.log.Warn("[HLS] %s: %s", mediaURL, w)
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", mediaURL, w))
	}

	keyURLs := make(map[*EncryptionKey]string)
	for _, seg := range pl.Segments {
		if seg.Key == nil {
			continue
		}
		if _, ok := keyURLs[seg.Key]; ok {
			continue
		}
		keyURL, err := Resolve(mediaURL, seg.Key.URI)
		if err != nil {
			return nil, "", fmt.Errorf("key uri %q: %w", seg.Key.URI, err)
		}
		keyURLs[seg.Key] = keyURL
	}

	names := localNames(pl.Segments, n, seen)
	jobs := make([]segmentJob, 0, len(pl.Segments))
	for i, seg := range pl.Segments {
		segURL, err := Resolve(mediaURL, seg.URI)
		if err != nil {
			segURL = seg.URI
		}
		job := segmentJob{seg: seg, url: segURL, name: names[i]}
		if seg.Key != nil {
			job.keyURL = keyURLs[seg.Key]
		}
		jobs = append(jobs, job)
	}

	results, written, err := f.fetchSegments(ctx, destDir, jobs, keys)
	if err != nil {
		return nil, "", err
	}

	rendered := pl.Rewrite(names)
	if err := f.root.WriteFile(path.Join(destDir, name), []byte(rendered)); err != nil {
		return nil, "", err
	}

	var duration float64
	for _, seg := range pl.Segments {
		duration += seg.Duration
	}

	return &VariantResult{
		Playlist:  name,
		SourceURL: mediaURL,
		Bytes:     written,
		Duration:  duration,
		Segments:  results,
	}, rendered, nil
}

func playlistName(n, total int) string {
	if total == 1 {
		return IndexPlaylist
	}
	return fmt.Sprintf("variant_%d.m3u8", n)
}

// localNames derives a file name per segment from its URL basename.
// Variants after the first get a v<n>_ prefix, and a name already in seen is
// prefixed with the segment index (then a counter) until it is unique. seen
// spans every variant written to one directory.
func localNames(segments []*Segment, variant int, seen map[string]bool) []string {
	prefix := ""
	if variant > 0 {
		prefix = fmt.Sprintf("v%d_", variant)
	}

	names := make([]string, len(segments))
	for i, seg := range segments {
		base := sanitizeName(segmentBase(seg.URI))
		if base == "" {
			base = fmt.Sprintf("segment_%d.ts", i)
		}
		name := prefix + base
		if seen[name] {
			name = fmt.Sprintf("%s%d_%s", prefix, i, base)
		}
		for k := 1; seen[name]; k++ {
			name = fmt.Sprintf("%s%d_%d_%s", prefix, i, k, base)
		}
		seen[name] = true
		names[i] = name
	}
	return names
}

func segmentBase(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil {
		p = u.Path
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return path.Base(p)
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if strings.HasSuffix(out, ".m3u8") || strings.HasSuffix(out, ".part") {
		out += ".seg"
	}
	return out
}

func estimateBandwidth(bytes int64, seconds float64) int64 {
	if bytes <= 0 || seconds <= 0 {
		return 0
	}
	return int64(float64(bytes*8) / seconds)
}
