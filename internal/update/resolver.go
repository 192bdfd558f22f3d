package update

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
)

// catalogPattern matches archive links in the file server's directory index.
var catalogPattern = regexp.MustCompile(`href="(vs_server_(?:linux-x64_)?([\d.]+)\.tar\.gz)"`)

// CatalogResolver reads the latest version from an Apache directory index.
type CatalogResolver struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewCatalogResolver creates a resolver for the index at catalogURL.
func NewCatalogResolver(catalogURL string, timeout time.Duration, logger zerolog.Logger) *CatalogResolver {
	return &CatalogResolver{
		url: catalogURL,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// LatestVersion fetches the index sorted by modification date, newest first,
// and returns the first archive listed.
func (r *CatalogResolver) LatestVersion(ctx context.Context) (Release, error) {
	u, err := url.Parse(r.url)
	if err != nil {
		return Release{}, fmt.Errorf("invalid catalog url %q: %w", r.url, err)
	}
	q := u.Query()
	q.Set("C", "M")
	q.Set("O", "D")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Release{}, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Release{}, vserrors.Wrapf(err, vserrors.ErrRemoteUnavailable, "failed to reach file server %s", r.url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Release{}, vserrors.Newf(vserrors.ErrRemoteUnavailable,
			"file server returned status %d", resp.StatusCode).
			WithDetail("url", r.url).
			WithDetail("status", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if m := catalogPattern.FindStringSubmatch(scanner.Text()); m != nil {
			rel := Release{Version: m[2], Archive: m[1]}
			r.logger.Debug().Str("version", rel.Version).Str("archive", rel.Archive).Msg("Found latest version in catalog")
			return rel, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return Release{}, vserrors.Wrap(err, vserrors.ErrRemoteUnavailable, "failed to read catalog")
	}

	return Release{}, vserrors.Newf(vserrors.ErrVersionNotFound, "no server archive listed at %s", r.url).
		WithDetail("url", r.url)
}
