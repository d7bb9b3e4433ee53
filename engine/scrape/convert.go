package scrape

import (
	"time"

	"github.com/lurkhq/lurk/engine/domain"
)

// toRecord converts one wire post into the pipeline record and normalizes it.
// Posts with no id are dropped by the caller.
func toRecord(d listingData, now time.Time) (domain.PostRecord, error) {
	rec := domain.PostRecord{
		ID:                  d.ID,
		Title:               d.Title,
		Author:              d.Author,
		Subreddit:           d.Subreddit,
		Permalink:           "https://www.reddit.com" + d.Permalink,
		URL:                 d.URL,
		URLOverriddenByDest: d.URLOverriddenByDest,
		SelfText:            d.SelfText,
		Domain:              d.Domain,
		CreatedUTC:          int64(d.CreatedUTC),
		IsVideo:             d.IsVideo,
		IsSelf:              d.IsSelf,
		IsNSFW:              d.Over18,
		Spoiler:             d.Spoiler,
		Archived:            d.Archived,
		Locked:              d.Locked,
		Stickied:            d.Stickied,
		Edited:              d.edited(),
		Score:               d.Score,
		NumComments:         d.NumComments,
		PostHint:            d.PostHint,
		GalleryURLs:         d.galleryURLs(),
		CrosspostOf:         d.CrosspostParent,
	}
	if d.PollData != nil {
		poll := &domain.PollPayload{
			TotalVotes: d.PollData.TotalVoteCount,
			VotingEnds: d.PollData.VotingEndTimestamp / 1000, // upstream is ms
			UserVoted:  d.PollData.UserSelection != nil,
		}
		for _, opt := range d.PollData.Options {
			poll.Options = append(poll.Options, domain.PollOption{
				ID: opt.ID, Text: opt.Text, Votes: opt.VoteCount,
			})
		}
		rec.Poll = poll
	}
	for _, a := range d.AllAwardings {
		rec.Awards = append(rec.Awards, domain.Award{Name: a.Name, Count: a.Count})
	}
	if err := rec.Normalize(now); err != nil {
		return domain.PostRecord{}, err
	}
	return rec, nil
}

// toRecords converts a listing page, skipping non-posts and records that
// fail normalization.
func toRecords(children []listingChild, now time.Time) []domain.PostRecord {
	out := make([]domain.PostRecord, 0, len(children))
	for _, child := range children {
		if child.Kind != "t3" {
			continue
		}
		rec, err := toRecord(child.Data, now)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}
