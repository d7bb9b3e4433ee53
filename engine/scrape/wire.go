package scrape

import (
	"bytes"
	"encoding/json"
	"html"
)

// Upstream JSON listing shapes. Only the fields the pipeline consumes are
// declared; everything else is dropped at decode time.

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
		After    string         `json:"after"`
	} `json:"data"`
}

type listingChild struct {
	Kind string      `json:"kind"`
	Data listingData `json:"data"`
}

type listingData struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	Author              string  `json:"author"`
	Subreddit           string  `json:"subreddit"`
	Permalink           string  `json:"permalink"`
	URL                 string  `json:"url"`
	URLOverriddenByDest string  `json:"url_overridden_by_dest"`
	SelfText            string  `json:"selftext"`
	Domain              string  `json:"domain"`
	CreatedUTC          float64 `json:"created_utc"`

	IsVideo  bool            `json:"is_video"`
	IsSelf   bool            `json:"is_self"`
	Over18   bool            `json:"over_18"`
	Spoiler  bool            `json:"spoiler"`
	Archived bool            `json:"archived"`
	Locked   bool            `json:"locked"`
	Stickied bool            `json:"stickied"`
	Edited   json.RawMessage `json:"edited"` // false or an epoch float

	Score       int    `json:"score"`
	NumComments int    `json:"num_comments"`
	PostHint    string `json:"post_hint"`

	IsGallery     bool                     `json:"is_gallery"`
	GalleryData   *galleryData             `json:"gallery_data"`
	MediaMetadata map[string]mediaMetadata `json:"media_metadata"`

	PollData *pollData `json:"poll_data"`

	AllAwardings        []awarding    `json:"all_awardings"`
	CrosspostParent     string        `json:"crosspost_parent"`
	CrosspostParentList []listingData `json:"crosspost_parent_list"`
}

type galleryData struct {
	Items []struct {
		MediaID string `json:"media_id"`
	} `json:"items"`
}

type mediaMetadata struct {
	Status string `json:"status"`
	M      string `json:"m"` // mime type, e.g. image/jpg
	S      struct {
		U   string `json:"u"`
		GIF string `json:"gif"`
	} `json:"s"`
}

type pollData struct {
	Options []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		VoteCount int    `json:"vote_count"`
	} `json:"options"`
	TotalVoteCount     int   `json:"total_vote_count"`
	VotingEndTimestamp int64 `json:"voting_end_timestamp"`
	UserSelection      any   `json:"user_selection"`
}

type awarding struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (d *listingData) edited() bool {
	return len(d.Edited) > 0 && !bytes.Equal(d.Edited, []byte("false"))
}

// galleryURLs resolves gallery items to direct media URLs in gallery order.
// Items whose metadata is missing or unprocessed fall back to the i.redd.it
// form derived from the media id.
func (d *listingData) galleryURLs() []string {
	if d.GalleryData == nil {
		return nil
	}
	urls := make([]string, 0, len(d.GalleryData.Items))
	for _, item := range d.GalleryData.Items {
		meta, ok := d.MediaMetadata[item.MediaID]
		if ok && meta.S.U != "" {
			urls = append(urls, html.UnescapeString(meta.S.U))
			continue
		}
		if ok && meta.S.GIF != "" {
			urls = append(urls, html.UnescapeString(meta.S.GIF))
			continue
		}
		ext := "jpg"
		if ok && meta.M == "image/png" {
			ext = "png"
		}
		urls = append(urls, "https://i.redd.it/"+item.MediaID+"."+ext)
	}
	return urls
}
