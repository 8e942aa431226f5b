package releases

import (
	"context"
	"fmt"
)

// Source turns a platform into a URL the client is redirected to.
type Source interface {
	DownloadURL(ctx context.Context, p Platform) (string, error)
}

// StaticSource serves the fixed URLs listed in the manifest.
type StaticSource struct {
	Manifest Manifest
}

func (s StaticSource) DownloadURL(_ context.Context, p Platform) (string, error) {
	a, err := s.Manifest.Asset(p)
	if err != nil {
		return "", err
	}
	if a.URL == "" {
		return "", fmt.Errorf("%w: no url for %s", ErrAssetNotFound, p)
	}
	return a.URL, nil
}
