package domain

// ImageRole is the artwork slot an image job fills on a content item.
type ImageRole string

const (
	RoleThumb  ImageRole = "thumb"
	RoleBanner ImageRole = "banner"
)

func ParseImageRole(value string) (ImageRole, bool) {
	switch ImageRole(value) {
	case RoleThumb, "thumbnail", "poster":
		return RoleThumb, true
	case RoleBanner:
		return RoleBanner, true
	}
	return "", false
}

// ContentItem is the subset of a catalog title the pipeline writes to.
type ContentItem struct {
	ID            int64  `json:"id"`
	Slug          string `json:"slug"`
	ThumbnailPath string `json:"thumbnail_path,omitempty"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
	BannerPath    string `json:"banner_path,omitempty"`
	BannerURL     string `json:"banner_url,omitempty"`
}

// Episode is the subset of a catalog episode the pipeline writes to.
type Episode struct {
	ID                int64     `json:"id"`
	ContentID         int64     `json:"content_id"`
	Number            int       `json:"number"`
	LocalHLSPath      string    `json:"local_hls_path,omitempty"`
	EpisodeURL        string    `json:"episode_url,omitempty"`
	DownloadStatus    JobStatus `json:"download_status,omitempty"`
	LastDownloadError string    `json:"last_download_error,omitempty"`
}
