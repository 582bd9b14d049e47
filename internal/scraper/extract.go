package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"comix-sync/internal/domain"

	"github.com/PuerkitoBio/goquery"
)

var (
	imageURLRe        = regexp.MustCompile(`(?i)https?://[^\s"'\\<>]+?\.(?:webp|jpe?g|png)`)
	imageSuffixRe     = regexp.MustCompile(`(?i)\.(?:webp|jpe?g|png)$`)
	chapterPathHintRe = regexp.MustCompile(`\d+-\d+-chapter-\d+`)
	chapterLabelRe    = regexp.MustCompile(`(?i)Chapter\s+(\d+(?:\.\d+)?)`)
)

// filename fragments that mark non-content assets on the target site
var skipFragments = []string{"logo", "icon", "avatar", "banner", "favicon", "@100", "@280"}

// hosts/paths that mark actual page images
var contentHints = []string{"wowpic", "cdn", "static"}

// ExtractImages pulls chapter page images out of raw HTML. Bare CDN-looking
// URLs are scanned first since the site hides page URLs in script payloads
// and lazy-load attributes; img tags are only consulted when the raw scan
// finds too few. Order of first appearance is the reading order.
func ExtractImages(html, pageURL string) []domain.Image {
	seen := make(map[string]struct{})
	var images []domain.Image

	add := func(raw string) {
		normalized := normalizeImageURL(raw, pageURL)
		if normalized == "" {
			return
		}
		if _, ok := seen[normalized]; ok {
			return
		}
		seen[normalized] = struct{}{}
		images = append(images, domain.Image{
			URL:       normalized,
			AltText:   fmt.Sprintf("Page %d", len(images)+1),
			PageIndex: len(images),
		})
	}

	for _, raw := range imageURLRe.FindAllString(html, -1) {
		if !looksLikeContent(raw) {
			continue
		}
		add(raw)
	}

	// raw scan came up short, fall back to img tags
	if len(images) < 5 {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return images
		}

		doc.Find("img").Each(func(_ int, s *goquery.Selection) {
			src, ok := s.Attr("src")
			if !ok || src == "" {
				src, _ = s.Attr("data-src")
			}
			if src == "" {
				src, _ = s.Attr("data-original")
			}
			if src == "" {
				return
			}
			if containsAny(strings.ToLower(src), []string{"logo", "icon"}) {
				return
			}
			if !imageSuffixRe.MatchString(strings.SplitN(src, "?", 2)[0]) {
				return
			}
			add(src)
		})
	}

	return images
}

func looksLikeContent(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if containsAny(lower, skipFragments) {
		return false
	}
	return containsAny(lower, contentHints) || chapterPathHintRe.MatchString(rawURL)
}

func normalizeImageURL(raw, pageURL string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		base, err := url.Parse(pageURL)
		if err != nil || base.Host == "" {
			return ""
		}
		return base.Scheme + "://" + base.Host + raw
	default:
		return raw
	}
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// DOMMetadata is the best-effort metadata readable from the visible DOM.
// It is the lowest-precedence metadata source.
type DOMMetadata struct {
	Title        string
	ChapterLabel string
	Provider     string
	NextURL      string
	PrevURL      string
}

// ExtractDOMMetadata reads chapter metadata out of page markup: the title
// tag, scanlator links and next/prev navigation anchors.
func ExtractDOMMetadata(html, siteURL string) DOMMetadata {
	var meta DOMMetadata

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return meta
	}

	if fullTitle := strings.TrimSpace(doc.Find("title").First().Text()); fullTitle != "" {
		if m := chapterLabelRe.FindStringSubmatch(fullTitle); m != nil {
			meta.ChapterLabel = "Chapter " + m[1]
		}
		parts := strings.Split(fullTitle, " - ")
		if len(parts) > 1 {
			meta.Title = strings.TrimSpace(parts[1])
		} else {
			meta.Title = strings.TrimSpace(parts[0])
		}
	}

	providerLink := doc.Find(`a[href*='/scanlator/'], a[href*='/team/'], [class*='provider'] a, [class*='scanlator'] a`).First()
	if providerLink.Length() > 0 {
		meta.Provider = strings.TrimSpace(providerLink.Text())
	}

	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return true
		}
		text := strings.ToLower(s.Text())

		if strings.Contains(text, "next") && meta.NextURL == "" {
			meta.NextURL = absoluteURL(href, siteURL)
		} else if strings.Contains(text, "prev") && meta.PrevURL == "" {
			meta.PrevURL = absoluteURL(href, siteURL)
		}

		return meta.NextURL == "" || meta.PrevURL == ""
	})

	return meta
}

func absoluteURL(href, siteURL string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return strings.TrimRight(siteURL, "/") + href
}
