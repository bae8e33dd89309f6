package hls

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/datallboy/mediaq/internal/decoding"
)

const (
	tagHeader        = "#EXTM3U"
	tagStreamInf     = "#EXT-X-STREAM-INF"
	tagKey           = "#EXT-X-KEY"
	tagMediaSequence = "#EXT-X-MEDIA-SEQUENCE"
	tagInf           = "#EXTINF"
	tagMedia         = "#EXT-X-MEDIA"
	tagIFrameInf     = "#EXT-X-I-FRAME-STREAM-INF"

	MethodNone   = "NONE"
	MethodAES128 = "AES-128"
)

// VariantRef is one STREAM-INF entry of a master playlist. InfLine and
// URILine index into MasterPlaylist.Lines.
type VariantRef struct {
	URI       string
	Bandwidth int64
	InfLine   int
	URILine   int
}

type MasterPlaylist struct {
	Lines    []string
	Variants []VariantRef
}

type EncryptionKey struct {
	Method string
	URI    string
	IV     []byte // nil when the playlist declares none
}

type EntryKind int

const (
	EntryTag EntryKind = iota
	EntryKey
	EntrySegment
	EntryBlank
)

type Entry struct {
	Kind    EntryKind
	Raw     string
	Segment *Segment
}

type Segment struct {
	URI      string
	Index    int
	Sequence int64
	Duration float64
	Key      *EncryptionKey // nil when segments pass through
}

type MediaPlaylist struct {
	Entries       []Entry
	Segments      []*Segment
	MediaSequence int64
	Warnings      []string
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// IsMaster reports whether text carries any stream-info tag.
func IsMaster(text string) bool {
	for _, line := range splitLines(text) {
		if strings.HasPrefix(strings.TrimSpace(line), tagStreamInf+":") {
			return true
		}
	}
	return false
}

// ParseMaster collects every STREAM-INF entry and the URI line following it,
// in document order. A STREAM-INF with no URI after it is ignored.
func ParseMaster(text string) *MasterPlaylist {
	m := &MasterPlaylist{Lines: splitLines(text)}

	for i := 0; i < len(m.Lines); i++ {
		line := strings.TrimSpace(m.Lines[i])
		if !strings.HasPrefix(line, tagStreamInf+":") {
			continue
		}
		attrs := ParseAttributes(strings.TrimPrefix(line, tagStreamInf+":"))
		bw, _ := strconv.ParseInt(attrs["BANDWIDTH"], 10, 64)

		for j := i + 1; j < len(m.Lines); j++ {
			next := strings.TrimSpace(m.Lines[j])
			if next == "" || strings.HasPrefix(next, "#") {
				if strings.HasPrefix(next, tagStreamInf) {
					break
				}
				continue
			}
			m.Variants = append(m.Variants, VariantRef{URI: next, Bandwidth: bw, InfLine: i, URILine: j})
			i = j
			break
		}
	}
	return m
}

// SelectVariants returns up to max variants, highest bandwidth first. Equal
// bandwidths keep their playlist order.
func SelectVariants(variants []VariantRef, max int) []VariantRef {
	sorted := make([]VariantRef, len(variants))
	copy(sorted, variants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bandwidth > sorted[j].Bandwidth
	})
	if max <= 0 {
		max = 1
	}
	if len(sorted) > max {
		sorted = sorted[:max]
	}
	return sorted
}

// ParseMedia walks a media playlist, tracking the active key and the media
// sequence. Unsupported key methods clear the key and add a warning.
func ParseMedia(text string) (*MediaPlaylist, error) {
	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty media playlist")
	}

	p := &MediaPlaylist{}
	var current *EncryptionKey
	var pendingDuration float64

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			p.Entries = append(p.Entries, Entry{Kind: EntryBlank, Raw: raw})

		case strings.HasPrefix(line, tagKey+":"):
			p.Entries = append(p.Entries, Entry{Kind: EntryKey, Raw: raw})
			key, warning := parseKey(strings.TrimPrefix(line, tagKey+":"))
			if warning != "" {
				p.Warnings = append(p.Warnings, warning)
			}
			current = key

		case strings.HasPrefix(line, tagMediaSequence+":"):
			p.Entries = append(p.Entries, Entry{Kind: EntryTag, Raw: raw})
			seq, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, tagMediaSequence+":")), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid media sequence %q: %w", line, err)
			}
			p.MediaSequence = seq

		case strings.HasPrefix(line, tagInf+":"):
			p.Entries = append(p.Entries, Entry{Kind: EntryTag, Raw: raw})
			value := strings.TrimPrefix(line, tagInf+":")
			if comma := strings.IndexByte(value, ','); comma >= 0 {
				value = value[:comma]
			}
			pendingDuration, _ = strconv.ParseFloat(strings.TrimSpace(value), 64)

		case strings.HasPrefix(line, "#"):
			p.Entries = append(p.Entries, Entry{Kind: EntryTag, Raw: raw})

		default:
			seg := &Segment{
				URI:      line,
				Index:    len(p.Segments),
				Duration: pendingDuration,
				Key:      current,
			}
			pendingDuration = 0
			p.Segments = append(p.Segments, seg)
			p.Entries = append(p.Entries, Entry{Kind: EntrySegment, Raw: raw, Segment: seg})
		}
	}

	// Some origins emit EXT-X-MEDIA-SEQUENCE after the first segment.
	for _, seg := range p.Segments {
		seg.Sequence = p.MediaSequence + int64(seg.Index)
	}
	return p, nil
}

func parseKey(attrList string) (*EncryptionKey, string) {
	attrs := ParseAttributes(attrList)
	method := strings.ToUpper(attrs["METHOD"])

	switch method {
	case MethodAES128:
	case MethodNone, "":
		return nil, ""
	default:
		return nil, fmt.Sprintf("unsupported key method %s; segments stored as fetched", method)
	}

	key := &EncryptionKey{Method: MethodAES128, URI: attrs["URI"]}
	if key.URI == "" {
		return nil, "AES-128 key without URI ignored; segments stored as fetched"
	}
	if ivText, ok := attrs["IV"]; ok && ivText != "" {
		iv, err := decoding.ParseIV(ivText)
		if err != nil {
			return key, fmt.Sprintf("invalid IV %q ignored; using sequence IV", ivText)
		}
		key.IV = iv
	}
	return key, ""
}

// ParseAttributes splits an HLS attribute list into upper-cased keys and
// unquoted values. Commas inside quoted strings do not split.
func ParseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	var key, val strings.Builder
	inKey, inQuote := true, false

	flush := func() {
		k := strings.ToUpper(strings.TrimSpace(key.String()))
		if k != "" {
			attrs[k] = strings.TrimSpace(val.String())
		}
		key.Reset()
		val.Reset()
		inKey = true
	}

	for _, r := range list {
		switch {
		case inKey && r == '=':
			inKey = false
		case inKey && r == ',':
			flush()
		case inKey:
			key.WriteRune(r)
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			flush()
		default:
			val.WriteRune(r)
		}
	}
	flush()
	return attrs
}

// Resolve turns ref into an absolute URL relative to base.
func Resolve(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}
