// Package domain holds the core data model: post records, acquisition
// targets, content types, and the structured error taxonomy shared by every
// stage of the pipeline.
package domain

import (
	"time"
)

// ISOFormat is the layout for CreatedISO. All timestamps are UTC.
const ISOFormat = "2006-01-02T15:04:05Z"

// PostRecord is a single acquired content item. Fields up to Annotations are
// set during acquisition and read-only afterwards; handlers may only append
// annotations.
type PostRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	Subreddit string `json:"subreddit"`
	Permalink string `json:"permalink"`

	URL                 string `json:"url"`
	URLOverriddenByDest string `json:"url_overridden_by_dest,omitempty"`
	MediaURL            string `json:"media_url,omitempty"`

	SelfText string `json:"selftext,omitempty"`
	Domain   string `json:"domain,omitempty"`

	CreatedUTC int64  `json:"created_utc"`
	CreatedISO string `json:"created_iso"`

	IsVideo  bool `json:"is_video"`
	IsSelf   bool `json:"is_self"`
	IsNSFW   bool `json:"is_nsfw"`
	Spoiler  bool `json:"spoiler"`
	Archived bool `json:"archived"`
	Locked   bool `json:"locked"`
	Stickied bool `json:"stickied"`
	Edited   bool `json:"edited"`

	Score       int `json:"score"`
	NumComments int `json:"num_comments"`

	GalleryURLs    []string       `json:"gallery_urls,omitempty"`
	Poll           *PollPayload   `json:"poll,omitempty"`
	Awards         []Award        `json:"awards,omitempty"`
	PostHint       string         `json:"post_hint,omitempty"`
	CrosspostOf    string         `json:"crosspost_parent,omitempty"`

	Annotations Annotations `json:"annotations,omitempty"`
}

// PollPayload carries poll options and totals for poll posts.
type PollPayload struct {
	Options     []PollOption `json:"options"`
	TotalVotes  int          `json:"total_votes"`
	VotingEnds  int64        `json:"voting_ends,omitempty"`
	UserVoted   bool         `json:"user_voted,omitempty"`
}

// PollOption is a single poll choice.
type PollOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Award is a post award with its count.
type Award struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Annotations are the only fields handlers may write after acquisition.
type Annotations struct {
	OutputPaths      []string `json:"output_paths,omitempty"`
	SidecarPath      string   `json:"sidecar_path,omitempty"`
	MetadataEmbedded bool     `json:"metadata_embedded,omitempty"`
	HandledBy        string   `json:"handled_by,omitempty"`
}

// ErrMissingID rejects raw posts with no id; surrounding posts proceed.
var ErrMissingID = NewRecord(KindValidation, "post record has no id")

// Normalize enforces the record invariants: a non-empty id, a well-formed
// CreatedISO (falling back to now), and the media-URL priority
// media_url > url_overridden_by_dest > url, skipping blanks.
func (p *PostRecord) Normalize(now time.Time) error {
	if p.ID == "" {
		return ErrMissingID
	}
	if p.CreatedUTC > 0 {
		p.CreatedISO = time.Unix(p.CreatedUTC, 0).UTC().Format(ISOFormat)
	} else if _, err := time.Parse(ISOFormat, p.CreatedISO); err != nil {
		p.CreatedISO = now.UTC().Truncate(time.Second).Format(ISOFormat)
	}
	p.MediaURL = firstNonBlank(p.MediaURL, p.URLOverriddenByDest, p.URL)
	return nil
}

// CreatedAt returns the creation time derived from CreatedUTC.
func (p *PostRecord) CreatedAt() time.Time {
	return time.Unix(p.CreatedUTC, 0).UTC()
}

// SearchText is the text body filters match against.
func (p *PostRecord) SearchText() string {
	if p.SelfText == "" {
		return p.Title
	}
	return p.Title + "\n" + p.SelfText
}

// Annotate appends handler output to the record. Additive only.
func (p *PostRecord) Annotate(handler string, paths ...string) {
	p.Annotations.HandledBy = handler
	p.Annotations.OutputPaths = append(p.Annotations.OutputPaths, paths...)
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
