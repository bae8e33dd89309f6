package domain

import (
	"encoding/json"
	"fmt"
)

type JobKind string

const (
	KindImage JobKind = "image"
	KindHLS   JobKind = "hls"
)

// OwnerRef identifies the row a job's result is reflected into.
// Image jobs own a content item, HLS jobs own an episode. The fields are
// unexported so a reference can only be built through ImageOwner/HLSOwner,
// which keeps kind and id consistent.
type OwnerRef struct {
	kind JobKind
	id   int64
}

func ImageOwner(contentID int64) OwnerRef {
	return OwnerRef{kind: KindImage, id: contentID}
}

func HLSOwner(episodeID int64) OwnerRef {
	return OwnerRef{kind: KindHLS, id: episodeID}
}

// OwnerFromColumns rebuilds a reference from the nullable job table columns.
func OwnerFromColumns(kind string, contentID, episodeID *int64) (OwnerRef, error) {
	switch JobKind(kind) {
	case KindImage:
		if contentID == nil || episodeID != nil {
			return OwnerRef{}, fmt.Errorf("image job must reference exactly one content item")
		}
		return ImageOwner(*contentID), nil
	case KindHLS:
		if episodeID == nil || contentID != nil {
			return OwnerRef{}, fmt.Errorf("hls job must reference exactly one episode")
		}
		return HLSOwner(*episodeID), nil
	default:
		return OwnerRef{}, fmt.Errorf("unknown job kind %q", kind)
	}
}

func (o OwnerRef) Kind() JobKind { return o.kind }

func (o OwnerRef) Valid() bool {
	return (o.kind == KindImage || o.kind == KindHLS) && o.id > 0
}

// ContentID returns the owning content item for image jobs.
func (o OwnerRef) ContentID() (int64, bool) {
	return o.id, o.kind == KindImage
}

// EpisodeID returns the owning episode for HLS jobs.
func (o OwnerRef) EpisodeID() (int64, bool) {
	return o.id, o.kind == KindHLS
}

// Columns splits the reference into the (content_id, episode_id) column pair.
func (o OwnerRef) Columns() (contentID, episodeID *int64) {
	id := o.id
	switch o.kind {
	case KindImage:
		return &id, nil
	case KindHLS:
		return nil, &id
	}
	return nil, nil
}

func (o OwnerRef) String() string {
	switch o.kind {
	case KindImage:
		return fmt.Sprintf("content:%d", o.id)
	case KindHLS:
		return fmt.Sprintf("episode:%d", o.id)
	}
	return "unset"
}

type ownerJSON struct {
	Kind      JobKind `json:"kind"`
	ContentID *int64  `json:"content_id,omitempty"`
	EpisodeID *int64  `json:"episode_id,omitempty"`
}

func (o OwnerRef) MarshalJSON() ([]byte, error) {
	contentID, episodeID := o.Columns()
	return json.Marshal(ownerJSON{Kind: o.kind, ContentID: contentID, EpisodeID: episodeID})
}
