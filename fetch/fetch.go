// Package fetch implements an io.ReaderAt over a remote object reached
// by ranged HTTP GET requests. It serves as the compressed source of an
// archive.Reader, which reads the whole object in a single ReadAt call.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v3"
)

// Reader is an io.ReaderAt backed by HTTP Range requests against a
// single URI, following redirects as it goes.
type Reader struct {
	ctx context.Context
	rt  http.RoundTripper
	uri string

	newBackoff func() backoff.BackOff
}

// Option configures a Reader returned by New.
type Option func(*Reader)

// WithBackOff overrides the retry policy applied to transient
// RoundTrip failures. The default is backoff.NewExponentialBackOff(),
// which gives up after its default maximum elapsed time; ctx's
// cancellation also stops the retries.
func WithBackOff(b backoff.BackOff) Option {
	return func(r *Reader) {
		r.newBackoff = func() backoff.BackOff { return b }
	}
}

// New returns a Reader that issues ranged GETs against uri using rt.
func New(ctx context.Context, uri string, rt http.RoundTripper, opts ...Option) *Reader {
	r := &Reader{
		ctx: ctx,
		rt:  rt,
		uri: uri,
		newBackoff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReadAt issues a Range: bytes=off-(off+len(p)-1) request and fills p
// from the response body. A transient RoundTrip failure (network
// error, not a non-206/3xx status, which indicates the server doesn't
// support range requests at all) is retried with exponential backoff.
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	var n int
	operation := func() error {
		var err error
		n, err = r.readAtOnce(p, off)
		return err
	}

	bo := backoff.WithContext(r.newBackoff(), r.ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return n, err
	}
	return n, nil
}

func (r *Reader) readAtOnce(p []byte, off int64) (int, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.uri, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))

	res, err := r.rt.RoundTrip(req)
	if err != nil {
		// Network-level failures are the transient case backoff exists
		// for.
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusPartialContent {
		n, err := io.ReadFull(res.Body, p)
		if err != nil {
			return n, backoff.Permanent(err)
		}
		return n, nil
	}

	redir := res.Header.Get("Location")
	if redir == "" || res.StatusCode/100 != 3 {
		// Not range-capable and not a redirect: this is a format/config
		// error on the server's part, not one more retries will fix.
		return 0, backoff.Permanent(fmt.Errorf("%q does not support range requests, saw status: %d", r.uri, res.StatusCode))
	}

	u, err := url.Parse(redir)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	r.uri = req.URL.ResolveReference(u).String()
	return r.readAtOnce(p, off)
}
