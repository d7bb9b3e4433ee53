package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/lurkhq/lurk/engine/domain"
	"github.com/lurkhq/lurk/pkg/resilience"
)

// Downloader fetches media files. Every fetch flows through the downloads
// rate-limit class, a per-host pacing limiter, and a per-host circuit
// breaker so one dying host cannot poison the batch.
type Downloader struct {
	client   *http.Client
	coord    *resilience.Coordinator
	breakers *resilience.BreakerSet
	logger   *slog.Logger

	mu    sync.Mutex
	hosts map[string]*rate.Limiter

	perHostRate  rate.Limit
	perHostBurst int
}

// DownloaderOpts configures a Downloader.
type DownloaderOpts struct {
	Coord        *resilience.Coordinator
	Logger       *slog.Logger
	Timeout      time.Duration
	PerHostRate  float64 // requests/second per host, default 2
	PerHostBurst int
}

// NewDownloader creates a Downloader.
func NewDownloader(opts DownloaderOpts) *Downloader {
	if opts.Coord == nil {
		opts.Coord = resilience.NewCoordinator(nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.PerHostRate <= 0 {
		opts.PerHostRate = 2
	}
	if opts.PerHostBurst <= 0 {
		opts.PerHostBurst = 4
	}
	return &Downloader{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		coord: opts.Coord,
		breakers: resilience.NewBreakerSet(resilience.BreakerOpts{
			FailThreshold: 5,
			Timeout:       30 * time.Second,
		}),
		logger:       opts.Logger,
		hosts:        make(map[string]*rate.Limiter),
		perHostRate:  rate.Limit(opts.PerHostRate),
		perHostBurst: opts.PerHostBurst,
	}
}

func (d *Downloader) hostLimiter(host string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.hosts[host]
	if !ok {
		l = rate.NewLimiter(d.perHostRate, d.perHostBurst)
		d.hosts[host] = l
	}
	return l
}

// Fetch downloads rawURL into dest, creating parent directories. It writes
// through a temp file so dest never holds a partial body.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return 0, domain.NewRecord(domain.KindValidation, "bad media url "+rawURL)
	}
	if err := d.hostLimiter(u.Host).Wait(ctx); err != nil {
		return 0, domain.Wrap(domain.KindNetwork, "host pacing", err)
	}

	var written int64
	err = d.coord.Do(ctx, resilience.ClassDownloads, func(ctx context.Context) error {
		return d.breakers.For(u.Host).Call(ctx, func(ctx context.Context) error {
			var ferr error
			written, ferr = d.fetchOnce(ctx, rawURL, dest)
			return ferr
		})
	})
	if err != nil {
		return 0, err
	}
	d.logger.Debug("downloaded",
		"url", rawURL, "dest", dest, "size", humanize.Bytes(uint64(written)))
	return written, nil
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, domain.Wrap(domain.KindValidation, "build request", err)
	}
	req.Header.Set("User-Agent", "lurk/1.0 (personal media archiver)")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, domain.Wrap(domain.KindNetwork, "get "+rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return 0, domain.NewRecord(domain.KindTargetNotFound, "media gone: "+rawURL)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return 0, domain.NewRecord(domain.KindNetwork,
			fmt.Sprintf("http %d fetching %s", resp.StatusCode, rawURL))
	default:
		return 0, domain.NewRecord(domain.KindProcessing,
			fmt.Sprintf("http %d fetching %s", resp.StatusCode, rawURL))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, domain.Wrap(domain.KindFilesystem, "mkdir", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".lurk-*")
	if err != nil {
		return 0, domain.Wrap(domain.KindFilesystem, "create temp", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, domain.Wrap(domain.KindNetwork, "download body", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, domain.Wrap(domain.KindFilesystem, "finalize download", err)
	}
	return written, nil
}

// BuildFilename renders the filename template for a post and appends ext.
// Supported placeholders: {id}, {title}, {author}, {subreddit}, {date}.
func BuildFilename(template string, post *domain.PostRecord, ext string) string {
	if template == "" {
		template = "{id}_{title}"
	}
	date := ""
	if post.CreatedUTC > 0 {
		date = post.CreatedAt().Format("20060102")
	}
	out := strings.NewReplacer(
		"{id}", post.ID,
		"{title}", sanitize(post.Title),
		"{author}", sanitize(post.Author),
		"{subreddit}", sanitize(post.Subreddit),
		"{date}", date,
	).Replace(template)
	out = strings.Trim(out, "._ ")
	if out == "" {
		out = post.ID
	}
	return out + strings.ToLower(ext)
}

// URLExt returns the extension of a URL's path, or fallback when absent.
func URLExt(rawURL, fallback string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if ext := path.Ext(u.Path); ext != "" {
			return strings.ToLower(ext)
		}
	}
	return fallback
}

var filenameReplacer = strings.NewReplacer(
	"/", "-", "\\", "-", ":", "-", "*", "", "?", "", "\"", "",
	"<", "", ">", "", "|", "", "\n", " ", "\r", " ", "\t", " ",
)

// sanitize makes a string safe for use in a filename and bounds its length.
func sanitize(s string) string {
	s = filenameReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), "_")
	const maxLen = 120
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return s
}
