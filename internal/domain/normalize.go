package domain

import (
	"fmt"
	"strings"
)

const (
	maxTitleLen      = 120
	untitledFallback = "Untitled"

	// episodeRunThreshold is the link count above which a run of
	// undifferentiated links is presented as numbered episodes.
	episodeRunThreshold = 5
)

// Normalizer turns raw message events into canonical posts.
type Normalizer struct {
	extractor *Extractor
}

// NewNormalizer creates a normalizer using the given extractor.
func NewNormalizer(extractor *Extractor) *Normalizer {
	return &Normalizer{extractor: extractor}
}

// Normalize converts a message event into an immutable Post. The second
// return value is false when the message carries no extractable links and is
// therefore not a post. Normalize performs no I/O and never fails.
func (n *Normalizer) Normalize(event MessageEvent) (*Post, bool) {
	candidates := n.extractor.Extract(event.Text)
	if len(candidates) == 0 {
		return nil, false
	}

	links := make([]Link, len(candidates))
	for i, c := range candidates {
		links[i] = Link{URL: c.URL, Quality: c.Quality, Episode: c.Episode, Label: c.Quality}
	}
	applyDisplayLabels(links)

	chatTitle := event.ChatTitle
	if chatTitle == "" {
		chatTitle = "Unknown"
	}

	return &Post{
		SourceID:  event.SourceID(),
		Title:     titleOf(event.Text),
		RawText:   event.Text,
		Links:     links,
		ChatTitle: chatTitle,
		Timestamp: event.Timestamp,
	}, true
}

// applyDisplayLabels decides between quality and episode labeling for one
// post's link set. Episode labeling wins when the message organizes links by
// episode (two or more distinct tags) or groups a long run of links with no
// quality or episode markers at all. Exactly one style applies per post.
func applyDisplayLabels(links []Link) {
	distinct := make(map[string]struct{})
	undifferentiated := true
	for _, l := range links {
		if l.Episode != "" {
			distinct[l.Episode] = struct{}{}
		}
		if l.Quality != QualityUnknown {
			undifferentiated = false
		}
	}

	switch {
	case len(distinct) >= 2:
		for i := range links {
			tag := links[i].Episode
			if tag == "" {
				// Links before the first marker fall back to their position.
				tag = fmt.Sprintf("%d", i+1)
			}
			links[i].Label = "Episode " + tag
		}
	case len(distinct) == 0 && undifferentiated && len(links) > episodeRunThreshold:
		for i := range links {
			links[i].Label = fmt.Sprintf("Episode %d", i+1)
		}
	}
}

// titleOf returns the first non-blank line, trimmed and bounded.
func titleOf(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if runes := []rune(line); len(runes) > maxTitleLen {
			line = string(runes[:maxTitleLen])
		}
		return line
	}
	return untitledFallback
}
