package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lurkhq/lurk/engine/domain"
)

// base carries the fields every built-in handler shares.
type base struct {
	name     string
	priority int
	types    []domain.ContentType
}

func (b base) Name() string                                 { return b.name }
func (b base) Priority() int                                { return b.priority }
func (b base) SupportedContentTypes() []domain.ContentType  { return b.types }
func (b base) CanHandle(*domain.PostRecord, domain.ContentType) bool { return true }

// Builtins registers the stock handlers against reg. Built-in priorities sit
// at 100 so plugins with lower numbers can shadow them.
func Builtins(reg *Registry, dl *Downloader, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	reg.Register(&ImageHandler{base: base{"image", 100, []domain.ContentType{domain.ContentImage}}, dl: dl})
	reg.Register(&VideoHandler{base: base{"video", 100, []domain.ContentType{domain.ContentVideo}}, dl: dl})
	reg.Register(&GalleryHandler{base: base{"gallery", 100, []domain.ContentType{domain.ContentGallery}}, dl: dl, logger: logger})
	reg.Register(&TextHandler{base: base{"text", 100, []domain.ContentType{domain.ContentText}}})
	reg.Register(&PollHandler{base: base{"poll", 100, []domain.ContentType{domain.ContentPoll}}})
	reg.Register(&CrosspostHandler{base: base{"crosspost", 100, []domain.ContentType{domain.ContentCrosspost}}})
	reg.Register(&ExternalHandler{base: base{"external", 100, []domain.ContentType{domain.ContentExternal}}})
}

func fail(start time.Time, err error) Result {
	return Result{Success: false, Duration: time.Since(start), Err: err}
}

// writeFile writes data under cfg.OutputDir, creating directories as needed.
func writeFile(cfg Config, name string, data []byte) (string, error) {
	dest := filepath.Join(cfg.OutputDir, name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", domain.Wrap(domain.KindFilesystem, "mkdir", err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", domain.Wrap(domain.KindFilesystem, "write "+name, err)
	}
	return dest, nil
}

// finish attaches the optional sidecar and stamps the duration.
func finish(res Result, post *domain.PostRecord, cfg Config, start time.Time) Result {
	if cfg.CreateSidecars && len(res.Files) > 0 {
		sidecar, err := WriteSidecar(res.Files[0], post)
		if err != nil {
			res.Err = err
			res.Success = false
		} else {
			res.SidecarCreated = true
			res.Files = append(res.Files, sidecar)
			res.Operations = append(res.Operations, "sidecar")
			post.Annotations.SidecarPath = sidecar
		}
	}
	res.Duration = time.Since(start)
	return res
}

// ImageHandler downloads a single still image.
type ImageHandler struct {
	base
	dl *Downloader
}

func (h *ImageHandler) CanHandle(post *domain.PostRecord, _ domain.ContentType) bool {
	return post.MediaURL != ""
}

func (h *ImageHandler) Process(ctx context.Context, post *domain.PostRecord, cfg Config) Result {
	start := time.Now()
	name := BuildFilename(cfg.FilenameTemplate, post, URLExt(post.MediaURL, ".jpg"))
	dest := filepath.Join(cfg.OutputDir, name)
	if _, err := h.dl.Fetch(ctx, post.MediaURL, dest); err != nil {
		return fail(start, err)
	}
	return finish(Result{
		Success:    true,
		Files:      []string{dest},
		Operations: []string{"download"},
	}, post, cfg, start)
}

// VideoHandler downloads a video file. Reddit-hosted video is fetched as the
// DASH fallback stream; audio tracks are out of scope.
type VideoHandler struct {
	base
	dl *Downloader
}

func (h *VideoHandler) CanHandle(post *domain.PostRecord, _ domain.ContentType) bool {
	return post.MediaURL != ""
}

func (h *VideoHandler) Process(ctx context.Context, post *domain.PostRecord, cfg Config) Result {
	start := time.Now()
	src := post.MediaURL
	if strings.Contains(src, "v.redd.it") && URLExt(src, "") == "" {
		src = strings.TrimRight(src, "/") + "/DASH_720.mp4"
	}
	name := BuildFilename(cfg.FilenameTemplate, post, URLExt(src, ".mp4"))
	dest := filepath.Join(cfg.OutputDir, name)
	if _, err := h.dl.Fetch(ctx, src, dest); err != nil {
		return fail(start, err)
	}
	return finish(Result{
		Success:    true,
		Files:      []string{dest},
		Operations: []string{"download"},
	}, post, cfg, start)
}

// GalleryHandler downloads every gallery item into a per-post directory,
// numbering files by gallery position.
type GalleryHandler struct {
	base
	dl     *Downloader
	logger *slog.Logger
}

func (h *GalleryHandler) CanHandle(post *domain.PostRecord, _ domain.ContentType) bool {
	return len(post.GalleryURLs) > 0
}

func (h *GalleryHandler) Process(ctx context.Context, post *domain.PostRecord, cfg Config) Result {
	start := time.Now()
	dir := filepath.Join(cfg.OutputDir, BuildFilename(cfg.FilenameTemplate, post, ""))

	var files []string
	var firstErr error
	for i, u := range post.GalleryURLs {
		name := fmt.Sprintf("%03d%s", i+1, URLExt(u, ".jpg"))
		dest := filepath.Join(dir, name)
		if _, err := h.dl.Fetch(ctx, u, dest); err != nil {
			h.logger.Warn("gallery item failed", "post", post.ID, "item", i+1, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		files = append(files, dest)
	}
	if len(files) == 0 {
		if firstErr == nil {
			firstErr = domain.NewRecord(domain.KindProcessing, "gallery empty: "+post.ID)
		}
		return fail(start, firstErr)
	}
	res := Result{
		Success:    true,
		Files:      files,
		Operations: []string{fmt.Sprintf("download x%d", len(files))},
	}
	if firstErr != nil {
		res.Operations = append(res.Operations,
			fmt.Sprintf("%d of %d items failed", len(post.GalleryURLs)-len(files), len(post.GalleryURLs)))
	}
	return finish(res, post, cfg, start)
}

// TextHandler writes self posts as markdown documents.
type TextHandler struct {
	base
}

func (h *TextHandler) Process(_ context.Context, post *domain.PostRecord, cfg Config) Result {
	start := time.Now()
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", post.Title)
	fmt.Fprintf(&b, "- author: u/%s\n- subreddit: r/%s\n- score: %d\n- posted: %s\n",
		post.Author, post.Subreddit, post.Score, post.CreatedISO)
	if post.Permalink != "" {
		fmt.Fprintf(&b, "- permalink: %s\n", post.Permalink)
	}
	b.WriteString("\n")
	if post.SelfText != "" {
		b.WriteString(post.SelfText)
		b.WriteString("\n")
	}

	name := BuildFilename(cfg.FilenameTemplate, post, ".md")
	dest, err := writeFile(cfg, name, []byte(b.String()))
	if err != nil {
		return fail(start, err)
	}
	return finish(Result{
		Success:      true,
		Files:        []string{dest},
		Operations:   []string{"write markdown"},
		EmbeddedMeta: true,
	}, post, cfg, start)
}

// PollHandler archives the poll payload as JSON, since poll media cannot be
// downloaded.
type PollHandler struct {
	base
}

func (h *PollHandler) CanHandle(post *domain.PostRecord, _ domain.ContentType) bool {
	return post.Poll != nil
}

func (h *PollHandler) Process(_ context.Context, post *domain.PostRecord, cfg Config) Result {
	start := time.Now()
	payload := struct {
		ID        string              `json:"id"`
		Title     string              `json:"title"`
		Subreddit string              `json:"subreddit"`
		Poll      *domain.PollPayload `json:"poll"`
	}{post.ID, post.Title, post.Subreddit, post.Poll}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fail(start, domain.Wrap(domain.KindProcessing, "encode poll", err))
	}
	name := BuildFilename(cfg.FilenameTemplate, post, ".poll.json")
	dest, werr := writeFile(cfg, name, data)
	if werr != nil {
		return fail(start, werr)
	}
	return finish(Result{
		Success:    true,
		Files:      []string{dest},
		Operations: []string{"write poll"},
	}, post, cfg, start)
}

// CrosspostHandler records crosspost provenance without refetching the
// original, which the acquisition stage already captured when in scope.
type CrosspostHandler struct {
	base
}

func (h *CrosspostHandler) Process(_ context.Context, post *domain.PostRecord, cfg Config) Result {
	start := time.Now()
	note := fmt.Sprintf("crosspost of %s\npermalink: %s\ntitle: %s\n",
		post.CrosspostOf, post.Permalink, post.Title)
	name := BuildFilename(cfg.FilenameTemplate, post, ".crosspost.txt")
	dest, err := writeFile(cfg, name, []byte(note))
	if err != nil {
		return fail(start, err)
	}
	return finish(Result{
		Success:    true,
		Files:      []string{dest},
		Operations: []string{"annotate crosspost"},
	}, post, cfg, start)
}

// ExternalHandler saves unrecognized link posts as .url shortcut files so the
// link survives even when the content cannot be mirrored.
type ExternalHandler struct {
	base
}

func (h *ExternalHandler) CanHandle(post *domain.PostRecord, _ domain.ContentType) bool {
	return post.MediaURL != ""
}

func (h *ExternalHandler) Process(_ context.Context, post *domain.PostRecord, cfg Config) Result {
	start := time.Now()
	body := "[InternetShortcut]\nURL=" + post.MediaURL + "\n"
	name := BuildFilename(cfg.FilenameTemplate, post, ".url")
	dest, err := writeFile(cfg, name, []byte(body))
	if err != nil {
		return fail(start, err)
	}
	return finish(Result{
		Success:    true,
		Files:      []string{dest},
		Operations: []string{"write shortcut"},
	}, post, cfg, start)
}
