package domain

import "testing"

func TestDetectContentType(t *testing.T) {
	cases := []struct {
		label string
		post  PostRecord
		want  ContentType
	}{
		{"poll wins over self", PostRecord{IsSelf: true, Poll: &PollPayload{}}, ContentPoll},
		{"crosspost", PostRecord{CrosspostOf: "t3_abc"}, ContentCrosspost},
		{"gallery", PostRecord{GalleryURLs: []string{"https://i.redd.it/a.jpg"}}, ContentGallery},
		{"video flag", PostRecord{IsVideo: true, MediaURL: "https://v.redd.it/x"}, ContentVideo},
		{"self text", PostRecord{IsSelf: true}, ContentText},
		{"jpg extension", PostRecord{MediaURL: "https://example.com/pic.JPG?width=3"}, ContentImage},
		{"mp4 extension", PostRecord{MediaURL: "https://example.com/clip.mp4"}, ContentVideo},
		{"image host", PostRecord{MediaURL: "https://i.redd.it/abcdef"}, ContentImage},
		{"video host", PostRecord{MediaURL: "https://v.redd.it/abcdef"}, ContentVideo},
		{"external fallback", PostRecord{MediaURL: "https://example.com/article"}, ContentExternal},
		{"no url", PostRecord{}, ContentText},
	}
	for _, tc := range cases {
		if got := DetectContentType(&tc.post); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.label, got, tc.want)
		}
	}
}
