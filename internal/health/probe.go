package health

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/zama-app/zamad/internal/httputil"
)

// Probe issues one GET to endpoint and waits at most timeout for the
// response. Any 2xx status is healthy; everything else is returned as an
// error.
func Probe(ctx context.Context, client *http.Client, endpoint string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := httputil.Do(ctx, client, http.MethodGet, endpoint, nil, nil, httputil.NoRetry())
	if err != nil {
		return err
	}
	defer func() {
		// Drain so the keep-alive connection is reused by the next probe.
		io.Copy(io.Discard, io.LimitReader(resp.Body, httputil.MaxBodySize))
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &httputil.StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}
	return nil
}
