package domain

import (
	"net/url"
	"path"
	"slices"
	"strings"
)

// ContentType classifies a post for handler dispatch.
type ContentType string

const (
	ContentImage     ContentType = "image"
	ContentVideo     ContentType = "video"
	ContentGallery   ContentType = "gallery"
	ContentText      ContentType = "text"
	ContentPoll      ContentType = "poll"
	ContentCrosspost ContentType = "crosspost"
	ContentExternal  ContentType = "external"
)

// ImageExtensions and VideoExtensions are the recognized media file suffixes.
var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
	VideoExtensions = []string{".mp4", ".webm", ".mov", ".avi", ".mkv"}
)

var imageHosts = map[string]bool{
	"i.redd.it":       true,
	"i.imgur.com":     true,
	"preview.redd.it": true,
}

var videoHosts = map[string]bool{
	"v.redd.it":       true,
	"gfycat.com":      true,
	"redgifs.com":     true,
	"www.redgifs.com": true,
}

// DetectContentType deterministically classifies a post. Explicit payload
// flags win over URL heuristics; unrecognized link posts are external and
// self posts without a payload are text.
func DetectContentType(p *PostRecord) ContentType {
	switch {
	case p.Poll != nil:
		return ContentPoll
	case p.CrosspostOf != "":
		return ContentCrosspost
	case len(p.GalleryURLs) > 0:
		return ContentGallery
	case p.IsVideo:
		return ContentVideo
	case p.IsSelf:
		return ContentText
	}

	target := strings.ToLower(p.MediaURL)
	if target == "" {
		return ContentText
	}
	if ext := urlExtension(target); ext != "" {
		if slices.Contains(ImageExtensions, ext) {
			return ContentImage
		}
		if slices.Contains(VideoExtensions, ext) {
			return ContentVideo
		}
	}
	if host := urlHost(target); host != "" {
		if imageHosts[host] {
			return ContentImage
		}
		if videoHosts[host] {
			return ContentVideo
		}
	}
	return ContentExternal
}

// urlExtension returns the lowercase file extension of a URL path, without
// query or fragment.
func urlExtension(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return strings.ToLower(path.Ext(u.Path))
	}
	return ""
}

func urlHost(raw string) string {
	if u, err := url.Parse(raw); err == nil {
		return u.Host
	}
	return ""
}
