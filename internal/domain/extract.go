package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// LinkCandidate is one URL found in a message, together with the quality and
// episode context of its line.
type LinkCandidate struct {
	URL     string
	Quality string
	Episode string
}

// qualityPattern pairs a marker expression with its quality label. The table
// is consulted in order against the text before the URL on the same line;
// the first match wins. New tiers are added here, not in control flow.
type qualityPattern struct {
	pattern *regexp.Regexp
	label   string
}

var qualityTable = []qualityPattern{
	{regexp.MustCompile(`(?i)\b(?:4k|2160p|uhd)\b`), Quality4K},
	{regexp.MustCompile(`(?i)\b(?:1080p|fhd)\b`), Quality1080p},
	{regexp.MustCompile(`(?i)\b720p\b.*\b(?:hevc|x265)\b|\b(?:hevc|x265)\b.*\b720p\b`), Quality720HEVC},
	{regexp.MustCompile(`(?i)\b(?:720p|hd)\b`), Quality720p},
	{regexp.MustCompile(`(?i)\b(?:480p|sd)\b`), Quality480p},
}

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	episodePattern = regexp.MustCompile(`(?i)^\s*(?:episode|ep)\s*(\d+)`)
)

// Extractor scans message text for download links. It is pure and safe for
// concurrent use.
type Extractor struct {
	selfDomain string
}

// NewExtractor creates an extractor. selfDomain is the transport's own
// domain; links pointing back into it (or any of its subdomains) are never
// extracted as content links.
func NewExtractor(selfDomain string) *Extractor {
	return &Extractor{selfDomain: strings.ToLower(selfDomain)}
}

// Extract returns the link candidates of text in source line order. Empty or
// linkless input yields an empty result; Extract never fails. Identical URLs
// within one message are deduplicated, keeping the first occurrence's labels.
func (e *Extractor) Extract(text string) []LinkCandidate {
	var (
		candidates []LinkCandidate
		seen       map[string]struct{}
		episode    string
	)

	for _, line := range strings.Split(text, "\n") {
		// An episode marker applies to its own line's link and every link
		// after it, until the next marker.
		if m := episodePattern.FindStringSubmatch(line); m != nil {
			episode = m[1]
		}

		loc := urlPattern.FindStringIndex(line)
		if loc == nil {
			continue
		}

		rawURL := trimURL(line[loc[0]:loc[1]])
		if rawURL == "" || e.isSelfLink(rawURL) {
			continue
		}

		if seen == nil {
			seen = make(map[string]struct{})
		}
		if _, dup := seen[rawURL]; dup {
			continue
		}
		seen[rawURL] = struct{}{}

		candidates = append(candidates, LinkCandidate{
			URL:     rawURL,
			Quality: qualityOf(line[:loc[0]]),
			Episode: episode,
		})
	}

	return candidates
}

// isSelfLink reports whether rawURL points at the transport's own domain.
func (e *Extractor) isSelfLink(rawURL string) bool {
	if e.selfDomain == "" {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == e.selfDomain || strings.HasSuffix(host, "."+e.selfDomain)
}

// qualityOf matches the line prefix against the quality table.
func qualityOf(prefix string) string {
	for _, q := range qualityTable {
		if q.pattern.MatchString(prefix) {
			return q.label
		}
	}
	return QualityUnknown
}

// trimURL strips trailing punctuation from a URL token. Closing brackets are
// only stripped while they outnumber their opening counterparts, so URLs
// with balanced bracket pairs survive intact.
func trimURL(u string) string {
	for len(u) > 0 {
		switch u[len(u)-1] {
		case '.', ',', ';', '!', '?':
			u = u[:len(u)-1]
		case ')':
			if strings.Count(u, "(") >= strings.Count(u, ")") {
				return u
			}
			u = u[:len(u)-1]
		case ']':
			if strings.Count(u, "[") >= strings.Count(u, "]") {
				return u
			}
			u = u[:len(u)-1]
		case '}':
			if strings.Count(u, "{") >= strings.Count(u, "}") {
				return u
			}
			u = u[:len(u)-1]
		default:
			return u
		}
	}
	return u
}
