package pipeline

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/sync/singleflight"

	"github.com/harrowgate/epv/internal/domain"
	"github.com/harrowgate/epv/internal/service/urlcache"
)

// browserUserAgent is sent on redirect-follow requests so redirect chains
// that branch on User-Agent resolve the way a normal desktop Chrome visit
// would; link-tracking redirectors frequently serve different chains to
// non-browser clients.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Redirector resolves the final URL a link redirects to, caching results
// across requests and collapsing concurrent lookups of the same URL.
type Redirector struct {
	cache     *urlcache.Cache[string, string]
	group     singleflight.Group
	newClient func() (*http.Client, error)
}

// NewRedirector builds a Redirector backed by cache. newClient is called
// fresh on every cache miss, mirroring how the original resolver built one
// HTTP client per lookup; tests can substitute a constructor that fails to
// exercise the client-build-failure path.
func NewRedirector(cache *urlcache.Cache[string, string]) *Redirector {
	return &Redirector{cache: cache, newClient: defaultHTTPClient}
}

func defaultHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar}, nil
}

// Follow resolves u to the URL a GET request ultimately lands on after
// redirects. A cache hit short-circuits the network entirely. A transport
// failure (DNS, connection refused, timeout) is reported via ok=false with
// a nil error: per the action executor's silent-drop policy this is not a
// pipeline failure. A failure to even construct the HTTP client is an
// InternalError, since it indicates a broken runtime rather than a bad URL.
func (r *Redirector) Follow(ctx context.Context, u *url.URL) (*url.URL, bool, error) {
	key := u.String()
	if cached, ok := r.cache.Get(key); ok {
		final, err := url.Parse(cached)
		if err != nil {
			return nil, false, nil
		}
		return final, true, nil
	}

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		client, err := r.newClient()
		if err != nil {
			return nil, domain.InternalErr()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, nil
		}
		req.Header.Set("User-Agent", browserUserAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
		req.Header.Set("Accept-Language", "en")
		req.Header.Set("Dnt", "1")
		req.Header.Set("Sec-Fetch-Site", "none")
		req.Header.Set("Sec-Fetch-Mode", "navigate")
		req.Header.Set("Sec-Fetch-Dest", "document")
		req.Header.Set("Sec-Fetch-User", "?1")

		resp, err := client.Do(req)
		if err != nil {
			return nil, nil
		}
		defer resp.Body.Close()

		final := resp.Request.URL.String()
		r.cache.Insert(key, final)
		return final, nil
	})
	if err != nil {
		if de, ok := err.(*domain.Error); ok {
			return nil, false, de
		}
		return nil, false, nil
	}
	if v == nil {
		return nil, false, nil
	}

	final, err := url.Parse(v.(string))
	if err != nil {
		return nil, false, nil
	}
	return final, true, nil
}
