package scraper

import "testing"

func TestExtractImagesFiltersAndOrders(t *testing.T) {
	html := `<html><body>
<script>var pages = [
  "https://cdn.wowpic.site/9-1-chapter-3/01.webp",
  "https://cdn.wowpic.site/9-1-chapter-3/02.webp",
  "https://cdn.wowpic.site/9-1-chapter-3/01.webp",
  "https://cdn.wowpic.site/9-1-chapter-3/03.webp",
  "https://cdn.wowpic.site/9-1-chapter-3/04.webp",
  "https://cdn.wowpic.site/9-1-chapter-3/05.webp"
];</script>
<img src="https://static.comix.to/logo.png">
<img src="https://static.comix.to/avatar@100.jpg">
<img src="https://static.comix.to/poster@280.webp">
</body></html>`

	images := ExtractImages(html, "https://comix.to/title/x/9-1-chapter-3")

	if len(images) != 5 {
		t.Fatalf("expected 5 images, got %d", len(images))
	}
	for i, img := range images {
		if img.PageIndex != i {
			t.Fatalf("image %d has page index %d", i, img.PageIndex)
		}
	}
	if images[0].URL != "https://cdn.wowpic.site/9-1-chapter-3/01.webp" {
		t.Fatalf("first image = %q", images[0].URL)
	}
	if images[4].URL != "https://cdn.wowpic.site/9-1-chapter-3/05.webp" {
		t.Fatalf("last image = %q", images[4].URL)
	}
}

func TestExtractImagesDOMFallback(t *testing.T) {
	// only two raw matches, below the threshold, so the img scan kicks in
	html := `<html><body>
<script>var a = "https://cdn.wowpic.site/2-2-chapter-1/01.webp";</script>
<img src="https://pics.example.com/2-2-chapter-1/02.jpeg">
<img data-src="https://pics.example.com/2-2-chapter-1/03.png">
<img src="https://pics.example.com/logo.png">
<img src="/relative/2-2-chapter-1/04.webp">
<img src="https://pics.example.com/not-an-image.html">
</body></html>`

	images := ExtractImages(html, "https://comix.to/title/x/2-2-chapter-1")

	want := []string{
		"https://cdn.wowpic.site/2-2-chapter-1/01.webp",
		"https://pics.example.com/2-2-chapter-1/02.jpeg",
		"https://pics.example.com/2-2-chapter-1/03.png",
		"https://comix.to/relative/2-2-chapter-1/04.webp",
	}
	if len(images) != len(want) {
		t.Fatalf("expected %d images, got %d: %+v", len(want), len(images), images)
	}
	for i, w := range want {
		if images[i].URL != w {
			t.Fatalf("image %d = %q, want %q", i, images[i].URL, w)
		}
	}
}

func TestExtractDOMMetadata(t *testing.T) {
	html := `<html><head><title>Chapter 12 - Solo Max-Level Newbie</title></head><body>
<a href="/scanlator/asura">Asura</a>
<a href="/title/solo-max/1-chapter-11">Prev Chapter</a>
<a href="/title/solo-max/1-chapter-13">Next Chapter</a>
</body></html>`

	meta := ExtractDOMMetadata(html, "https://comix.to")

	if meta.Title != "Solo Max-Level Newbie" {
		t.Fatalf("title = %q", meta.Title)
	}
	if meta.ChapterLabel != "Chapter 12" {
		t.Fatalf("chapter label = %q", meta.ChapterLabel)
	}
	if meta.Provider != "Asura" {
		t.Fatalf("provider = %q", meta.Provider)
	}
	if meta.NextURL != "https://comix.to/title/solo-max/1-chapter-13" {
		t.Fatalf("next url = %q", meta.NextURL)
	}
	if meta.PrevURL != "https://comix.to/title/solo-max/1-chapter-11" {
		t.Fatalf("prev url = %q", meta.PrevURL)
	}
}
