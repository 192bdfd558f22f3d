package update

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
)

const fetchBufferSize = 1 << 20

// HTTPFetcher downloads archives over HTTP.
type HTTPFetcher struct {
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPFetcher creates a fetcher. timeout bounds connecting and waiting for
// response headers; the body itself may take as long as it needs.
func NewHTTPFetcher(timeout time.Duration, logger zerolog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
				TLSHandshakeTimeout:   timeout,
				ResponseHeaderTimeout: timeout,
			},
		},
		logger: logger,
	}
}

// Fetch streams url into dest. On any failure dest is removed.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("invalid archive url %q: %w", url, err)
	}

	f.logger.Info().Str("url", url).Msg("Downloading server archive")
	start := time.Now()

	resp, err := f.client.Do(req)
	if err != nil {
		return vserrors.Wrapf(err, vserrors.ErrRemoteUnavailable, "failed to reach %s", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return vserrors.Newf(vserrors.ErrRemoteUnavailable, "archive download returned status %d", resp.StatusCode).
			WithDetail("url", url).
			WithDetail("status", resp.StatusCode)
	}

	n, err := writeStream(resp.Body, dest)
	if err != nil {
		_ = os.Remove(dest)
		return vserrors.Wrapf(err, vserrors.ErrDownloadFailed, "failed to save archive to %s", dest)
	}

	f.logger.Info().
		Str("size", humanize.Bytes(uint64(n))).
		Dur("duration", time.Since(start)).
		Msg("Download complete")

	return nil
}

func writeStream(r io.Reader, dest string) (int64, error) {
	out, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	w := bufio.NewWriterSize(out, fetchBufferSize)
	n, err := io.Copy(w, r)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
