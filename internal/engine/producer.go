package engine

import (
	"context"

	"github.com/datallboy/mediaq/internal/app"
	"github.com/datallboy/mediaq/internal/assetpath"
	"github.com/datallboy/mediaq/internal/domain"
)

// EnqueueImage queues a poster or banner download for a content item. The
// target path is derived from the title, role and source extension.
func EnqueueImage(ctx context.Context, q app.Queue, contentID int64, title string, role domain.ImageRole, sourceURL string, priority int) (string, error) {
	target, err := assetpath.ImagePath(assetpath.Slugify(title), role, assetpath.ImageExt(sourceURL))
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, domain.EnqueueRequest{
		Owner:      domain.ImageOwner(contentID),
		SourceURL:  sourceURL,
		TargetPath: target,
		Priority:   priority,
	})
}

// EnqueueEpisode queues an HLS mirror for one episode into hls/<slug>/ep-<n>.
func EnqueueEpisode(ctx context.Context, q app.Queue, episodeID int64, title string, number int, sourceURL string, priority int) (string, error) {
	return q.Enqueue(ctx, domain.EnqueueRequest{
		Owner:      domain.HLSOwner(episodeID),
		SourceURL:  sourceURL,
		TargetPath: assetpath.HLSDir(title, number),
		Priority:   priority,
	})
}
