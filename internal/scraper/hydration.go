package scraper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"comix-sync/internal/domain"
)

// HydrationPayload is the structured chapter data the site's JS framework
// embeds in script tags for client-side hydration. When present it is the
// authoritative source for provider name and chapter number, even if the
// images were already found elsewhere.
type HydrationPayload struct {
	Images        []domain.Image
	Title         string
	ChapterLabel  string
	ChapterNumber *float64
	Provider      string
	NextURL       string
	PrevURL       string
}

type hydrationEnvelope struct {
	Images   []hydrationImage `json:"images"`
	Title    string           `json:"title"`
	Chapter  string           `json:"chapter"`
	Number   json.Number      `json:"number"`
	Provider string           `json:"provider"`
	Next     string           `json:"next"`
	Prev     string           `json:"prev"`
}

// hydrationImage tolerates both bare URL strings and {url, alt} objects;
// the site has shipped both shapes.
type hydrationImage struct {
	URL string
	Alt string
}

func (h *hydrationImage) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &h.URL)
	}

	var obj struct {
		URL string `json:"url"`
		Src string `json:"src"`
		Alt string `json:"alt"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}

	h.URL = obj.URL
	if h.URL == "" {
		h.URL = obj.Src
	}
	h.Alt = obj.Alt
	return nil
}

// TryParseHydrationPayload scans raw HTML for the string-escaped JSON blob
// carrying an images array. The payload is JSON embedded inside JS source,
// so it has to be unescaped before parsing. This parser is deliberately
// coupled to an undocumented external format: every failure means "no
// data", never an error.
func TryParseHydrationPayload(html string) *HydrationPayload {
	raw := findEscapedPayload(html)
	if raw == "" {
		return nil
	}

	// JSON permits the redundant \/ escape, strconv.Unquote does not
	raw = strings.ReplaceAll(raw, `\/`, "/")

	unescaped, err := strconv.Unquote(`"` + raw + `"`)
	if err != nil {
		return nil
	}

	var envelope hydrationEnvelope
	if err := json.Unmarshal([]byte(unescaped), &envelope); err != nil {
		return nil
	}

	payload := &HydrationPayload{
		Title:        strings.TrimSpace(envelope.Title),
		ChapterLabel: strings.TrimSpace(envelope.Chapter),
		Provider:     strings.TrimSpace(envelope.Provider),
		NextURL:      envelope.Next,
		PrevURL:      envelope.Prev,
	}

	if envelope.Number != "" {
		if n, err := envelope.Number.Float64(); err == nil {
			payload.ChapterNumber = &n
		}
	}

	for _, img := range envelope.Images {
		if img.URL == "" {
			continue
		}
		alt := img.Alt
		if alt == "" {
			alt = fmt.Sprintf("Page %d", len(payload.Images)+1)
		}
		payload.Images = append(payload.Images, domain.Image{
			URL:       img.URL,
			AltText:   alt,
			PageIndex: len(payload.Images),
		})
	}

	if len(payload.Images) == 0 && payload.Provider == "" && payload.ChapterNumber == nil {
		return nil
	}

	return payload
}

// findEscapedPayload locates the escaped JSON object containing the images
// array and returns it still in escaped form. It walks the enclosing braces
// manually: the blob sits inside a JS string literal, so quotes appear as
// `\"` and brace counting must ignore anything inside those strings.
func findEscapedPayload(html string) string {
	marker := strings.Index(html, `\"images\":`)
	if marker == -1 {
		return ""
	}

	// the opening brace may sit directly against the marker, so search a
	// window that still covers a brace at marker-1
	start := strings.LastIndex(html[:marker+2], `{\"`)
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(html); i++ {
		c := html[i]

		if c == '\\' && i+1 < len(html) {
			next := html[i+1]
			if next == '"' {
				inString = !inString
				i++
				continue
			}
			if next == '\\' {
				i++
				continue
			}
		}

		if inString {
			continue
		}

		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return html[start : i+1]
			}
		}
	}

	return ""
}
