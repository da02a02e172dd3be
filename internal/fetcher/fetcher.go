// Package fetcher materializes venue websites into the raw/today tree. Each
// venue contributes its homepage plus a small set of probed candidate paths
// (/menu, /specials, ...); pages are stored under a 12-char url hash with a
// per-venue metadata.json mapping hash back to url. A page already fetched
// today is never fetched again, so a same-day rerun is nearly free.
package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"venue-intel-pipeline/internal/constants"
	"venue-intel-pipeline/internal/datadir"
	"venue-intel-pipeline/internal/models"
	"venue-intel-pipeline/pkg/config"
	errs "venue-intel-pipeline/pkg/errors"
	"venue-intel-pipeline/pkg/logging"
	"venue-intel-pipeline/pkg/metrics"
	"venue-intel-pipeline/pkg/utils"
)

// Venue sites block obvious bot agents; a mainstream browser UA keeps the
// fetch indistinguishable from a visitor.
const browserUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Fetcher downloads venue pages with bounded global and per-host concurrency.
type Fetcher struct {
	client  *http.Client
	layout  datadir.Layout
	log     *logging.ComponentLogger
	pcfg    config.Pipeline
	hosts   *hostLimiter
	backoff errs.Backoff

	metaMu    sync.Mutex
	metaLocks map[string]*sync.Mutex

	mSaved  *metrics.Counter
	mCached *metrics.Counter
	mErrors *metrics.Counter
}

// New builds a fetcher around the pipeline knobs. The client follows
// redirects and decompresses transparently; timeouts are applied per URL via
// context, not on the client.
func New(pcfg config.Pipeline, layout datadir.Layout, log *logging.Logger) *Fetcher {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: constants.PerHostInFlight,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &Fetcher{
		client:    &http.Client{Transport: transport},
		layout:    layout,
		log:       log.WithComponent("fetcher"),
		pcfg:      pcfg,
		hosts:     newHostLimiter(constants.PerHostRPSDefault, constants.PerHostBurstDefault, constants.PerHostInFlight),
		backoff:   errs.NewBackoff(constants.FetchBackoffBase, constants.FetchBackoffCap, constants.FetchMaxAttempts),
		metaLocks: make(map[string]*sync.Mutex),
		mSaved:    metrics.Default.Counter("fetch_pages_saved", "Pages written to raw/today"),
		mCached:   metrics.Default.Counter("fetch_cache_hits", "Pages skipped because already fetched today"),
		mErrors:   metrics.Default.Counter("fetch_errors", "Per-URL fetch failures"),
	}
}

type job struct {
	venue *models.Venue
	url   string
	probe bool // derived candidate path; kept only on 2xx + non-trivial body
}

// FetchAll downloads every venue's candidate pages through a bounded worker
// pool. Per-URL failures are counted, never fatal; the only error returned is
// context cancellation.
func (f *Fetcher) FetchAll(ctx context.Context, venues []models.Venue) (*Stats, error) {
	stats := &Stats{}
	saved := &sync.Map{} // venueID -> *int64 pages present today

	workers := f.pcfg.FetcherConcurrency
	if workers <= 0 {
		workers = constants.FetcherConcurrencyDefault
	}

	jobs := make(chan job)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jb := range jobs {
				if ctx.Err() != nil {
					continue // drain remaining jobs without fetching
				}
				f.fetchOne(ctx, jb, stats, saved)
			}
		}()
	}

	paths := f.pcfg.CandidatePaths
	if len(paths) == 0 {
		paths = constants.DefaultCandidatePaths
	}

	withSite := 0
feed:
	for i := range venues {
		v := &venues[i]
		if !v.HasWebsite() {
			continue
		}
		urls := utils.CandidateURLs(*v.Website, paths)
		if len(urls) == 0 {
			f.log.Warn("unparsable website, venue skipped",
				logging.String("venue_id", v.ID), logging.String("website", *v.Website))
			continue
		}
		withSite++
		for j, u := range urls {
			select {
			case jobs <- job{venue: v, url: u, probe: j > 0}:
			case <-ctx.Done():
				break feed
			}
		}
	}
	close(jobs)
	wg.Wait()

	// A venue whose every URL failed still gets recorded; the merger will
	// emit it with zero pages.
	for i := range venues {
		v := &venues[i]
		if !v.HasWebsite() {
			continue
		}
		if n, ok := saved.Load(v.ID); !ok || atomic.LoadInt64(n.(*int64)) == 0 {
			atomic.AddInt64(&stats.EmptyVenues, 1)
			f.log.Warn("no pages fetched for venue", logging.String("venue_id", v.ID))
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, errs.NewTransient("fetcher.FetchAll", "fetch cancelled", err)
	}

	f.log.Info("fetch complete",
		logging.Int("venues", withSite),
		logging.Int64("pages_saved", atomic.LoadInt64(&stats.PagesSaved)),
		logging.Int64("cache_hits", atomic.LoadInt64(&stats.CacheHits)),
		logging.Int64("errors", stats.ErrorTotal()))
	return stats, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, jb job, stats *Stats, saved *sync.Map) {
	urlHash := utils.MD5Hex(jb.url, constants.URLHashHexLen)
	pagePath := f.layout.RawPagePath(jb.venue.ID, urlHash)

	if fromToday(pagePath, time.Now()) {
		atomic.AddInt64(&stats.CacheHits, 1)
		f.mCached.Inc(1)
		bumpVenue(saved, jb.venue.ID)
		return
	}

	atomic.AddInt64(&stats.URLsAttempted, 1)

	host := hostOf(jb.url)
	release, err := f.hosts.acquire(ctx, host)
	if err != nil {
		return // only fails on ctx done
	}
	body, err := f.download(ctx, jb.url, stats)
	release()

	if err != nil {
		f.mErrors.Inc(1)
		f.log.Debug("fetch failed",
			logging.String("venue_id", jb.venue.ID),
			logging.String("url", jb.url),
			logging.String("error", err.Error()))
		return
	}
	if body == nil {
		return // binary response, already counted
	}
	if jb.probe && len(body) < constants.FetchMinBodyBytes {
		atomic.AddInt64(&stats.ProbesRejected, 1)
		return
	}

	if err := f.save(jb.venue.ID, urlHash, jb.url, body); err != nil {
		f.log.Error("failed to save page", err,
			logging.String("venue_id", jb.venue.ID), logging.String("url", jb.url))
		return
	}
	atomic.AddInt64(&stats.PagesSaved, 1)
	f.mSaved.Inc(1)
	bumpVenue(saved, jb.venue.ID)
}

// download runs the retry loop for one URL. Transport errors and 5xx retry
// with exponential backoff; 429 waits out Retry-After (capped); any other
// 4xx fails immediately.
func (f *Fetcher) download(ctx context.Context, rawURL string, stats *Stats) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= constants.FetchMaxAttempts; attempt++ {
		body, res := f.attempt(ctx, rawURL, stats)
		if res.err == nil {
			return body, nil
		}
		lastErr = res.err

		if attempt == constants.FetchMaxAttempts || !res.retryable {
			break
		}
		wait := f.backoff.Delay(attempt + 1)
		if res.retryAfter > 0 {
			wait = res.retryAfter
			if wait > constants.FetchBackoffCap {
				wait = constants.FetchBackoffCap
			}
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

type attemptResult struct {
	err        error
	retryable  bool
	retryAfter time.Duration
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, stats *Stats) ([]byte, attemptResult) {
	timeout := f.pcfg.PerURLTimeout()
	if timeout <= 0 {
		timeout = constants.FetchTimeoutDefault
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, attemptResult{err: errs.NewPermanent("fetcher.attempt", "bad url "+rawURL, err)}
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		c := classify(err)
		stats.bump(c)
		return nil, attemptResult{
			err:       errs.NewTransient("fetcher.attempt", string(c)+" fetching "+rawURL, err),
			retryable: retryableClass(c),
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		stats.bump(classClient)
		drain(resp.Body)
		return nil, attemptResult{
			err:        errs.NewTransient("fetcher.attempt", "429 from "+rawURL, nil),
			retryable:  true,
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		stats.bump(classServer)
		drain(resp.Body)
		return nil, attemptResult{
			err:       errs.NewTransient("fetcher.attempt", resp.Status+" from "+rawURL, nil),
			retryable: true,
		}
	case resp.StatusCode >= 400:
		stats.bump(classClient)
		drain(resp.Body)
		return nil, attemptResult{err: errs.NewPermanent("fetcher.attempt", resp.Status+" from "+rawURL, nil)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		stats.bump(classOther)
		drain(resp.Body)
		return nil, attemptResult{err: errs.NewPermanent("fetcher.attempt", resp.Status+" from "+rawURL, nil)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, constants.FetchBodyCapBytes+1))
	if err != nil {
		c := classify(err)
		stats.bump(c)
		return nil, attemptResult{
			err:       errs.NewTransient("fetcher.attempt", "body read failed for "+rawURL, err),
			retryable: retryableClass(c),
		}
	}

	if !acceptableContent(resp.Header.Get("Content-Type"), data) {
		atomic.AddInt64(&stats.BinaryDropped, 1)
		f.log.Debug("binary response dropped",
			logging.String("url", rawURL),
			logging.String("content_type", resp.Header.Get("Content-Type")))
		return nil, attemptResult{}
	}

	if len(data) > constants.FetchBodyCapBytes {
		atomic.AddInt64(&stats.Truncated, 1)
		return []byte(utils.TruncateWithMarker(string(data), constants.FetchBodyCapBytes, constants.TruncationMarker)), attemptResult{}
	}
	return data, attemptResult{}
}

// save writes the page file then merges the hash->url mapping into the
// venue's metadata.json. The merge is serialized per venue because multiple
// workers can finish URLs of the same venue concurrently.
func (f *Fetcher) save(venueID, urlHash, pageURL string, body []byte) error {
	if err := datadir.WriteFileAtomic(f.layout.RawPagePath(venueID, urlHash), body); err != nil {
		return err
	}

	lock := f.venueLock(venueID)
	lock.Lock()
	defer lock.Unlock()

	meta := models.RawMetadata{VenueID: venueID, URLs: make(map[string]string)}
	var onDisk models.RawMetadata
	if err := datadir.ReadJSON(f.layout.RawMetadataPath(venueID), &onDisk); err == nil && onDisk.URLs != nil {
		meta.URLs = onDisk.URLs
	}
	meta.URLs[urlHash] = pageURL
	meta.FetchedAt = time.Now()

	return datadir.WriteJSONAtomic(f.layout.RawMetadataPath(venueID), meta)
}

func (f *Fetcher) venueLock(venueID string) *sync.Mutex {
	f.metaMu.Lock()
	defer f.metaMu.Unlock()
	l, ok := f.metaLocks[venueID]
	if !ok {
		l = &sync.Mutex{}
		f.metaLocks[venueID] = l
	}
	return l
}

// fromToday reports whether the file exists and was written during the
// current local calendar day. The mtime check is what makes same-day reruns
// idempotent.
func fromToday(path string, now time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	y1, m1, d1 := info.ModTime().Local().Date()
	y2, m2, d2 := now.Local().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func bumpVenue(saved *sync.Map, venueID string) {
	n, _ := saved.LoadOrStore(venueID, new(int64))
	atomic.AddInt64(n.(*int64), 1)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// acceptableContent filters to html-ish text. An absent Content-Type falls
// back to sniffing the first bytes.
func acceptableContent(contentType string, body []byte) bool {
	ct := contentType
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	for _, ok := range []string{"text/html", "application/xhtml", "text/plain", "application/xml", "text/xml"} {
		if strings.HasPrefix(ct, ok) {
			return true
		}
	}
	return false
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func drain(r io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(r, 4096))
}
