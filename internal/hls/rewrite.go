package hls

import (
	"fmt"
	"strings"
)

const DefaultBandwidth = 1000000

// Rewrite renders the playlist for local playback. Key tags are dropped and
// each segment line becomes names[segment.Index]; everything else is kept
// verbatim.
func (p *MediaPlaylist) Rewrite(names []string) string {
	var b strings.Builder
	for _, e := range p.Entries {
		switch e.Kind {
		case EntryKey:
			continue
		case EntrySegment:
			b.WriteString(names[e.Segment.Index])
		default:
			b.WriteString(e.Raw)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Rewrite renders a master that lists only the variants present in local,
// keyed by their URILine, each pointing at its local playlist. Rendition and
// I-frame URIs are resolved against base so they keep reaching the origin.
func (m *MasterPlaylist) Rewrite(local map[int]string, base string) string {
	skip := make(map[int]bool)
	for _, v := range m.Variants {
		if _, ok := local[v.URILine]; !ok {
			skip[v.InfLine] = true
			skip[v.URILine] = true
		}
	}

	var b strings.Builder
	for i, line := range m.Lines {
		if skip[i] {
			continue
		}
		if name, ok := local[i]; ok {
			b.WriteString(name)
			b.WriteByte('\n')
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, tagMedia+":") || strings.HasPrefix(trimmed, tagIFrameInf+":") {
			line = absoluteURIAttr(line, base)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// TrivialMaster wraps a single local media playlist in a one-variant master.
func TrivialMaster(bandwidth int64, playlist string) string {
	if bandwidth <= 0 {
		bandwidth = DefaultBandwidth
	}
	return fmt.Sprintf("%s\n%s:BANDWIDTH=%d\n%s\n", tagHeader, tagStreamInf, bandwidth, playlist)
}

func absoluteURIAttr(line, base string) string {
	const attr = `URI="`
	start := strings.Index(line, attr)
	if start < 0 {
		return line
	}
	start += len(attr)
	end := strings.IndexByte(line[start:], '"')
	if end < 0 {
		return line
	}
	abs, err := Resolve(base, line[start:start+end])
	if err != nil {
		return line
	}
	return line[:start] + abs + line[start+end:]
}
