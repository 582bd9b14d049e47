package utils

import (
	"testing"
	"time"
)

func TestParseChapterNumber(t *testing.T) {
	tests := []struct {
		label string
		want  *float64
	}{
		{"Chapter 12", ptr(12)},
		{"Chapter 12.5", ptr(12.5)},
		{"Ch. 7", ptr(7)},
		{"Oneshot", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := ParseChapterNumber(tt.label)
		if (got == nil) != (tt.want == nil) {
			t.Fatalf("ParseChapterNumber(%q) = %v, want %v", tt.label, got, tt.want)
		}
		if got != nil && *got != *tt.want {
			t.Fatalf("ParseChapterNumber(%q) = %v, want %v", tt.label, *got, *tt.want)
		}
	}
}

func TestChapterNumberFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want *float64
	}{
		{"https://comix.to/title/solo-max/14-chapter-7", ptr(7)},
		{"https://comix.to/title/solo-max/14-chapter-7.5", ptr(7.5)},
		{"https://comix.to/title/solo-max/14/", ptr(14)},
		{"https://comix.to/title/solo-max/oneshot", nil},
	}

	for _, tt := range tests {
		got := ChapterNumberFromURL(tt.url)
		if (got == nil) != (tt.want == nil) {
			t.Fatalf("ChapterNumberFromURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
		if got != nil && *got != *tt.want {
			t.Fatalf("ChapterNumberFromURL(%q) = %v, want %v", tt.url, *got, *tt.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Solo Max-Level Newbie", "solo-max-level-newbie"},
		{"Official (EN)", "official-_en_"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidateChapterLink(t *testing.T) {
	if !ValidateChapterLink("/title/solo-max/14-chapter-7") {
		t.Fatal("expected chapter link to validate")
	}
	if ValidateChapterLink("/title/solo-max") {
		t.Fatal("expected title link to be rejected")
	}
	if ValidateChapterLink("/genres/action") {
		t.Fatal("expected genre link to be rejected")
	}
}

func TestResolveRelativeTime(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	if got := ResolveRelativeTime("3h", now); got == nil || !got.Equal(now.Add(-3*time.Hour)) {
		t.Fatalf("ResolveRelativeTime(3h) = %v", got)
	}
	if got := ResolveRelativeTime("2d", now); got == nil || !got.Equal(now.AddDate(0, 0, -2)) {
		t.Fatalf("ResolveRelativeTime(2d) = %v", got)
	}
	if got := ResolveRelativeTime("4mo", now); got == nil || !got.Equal(now.AddDate(0, -4, 0)) {
		t.Fatalf("ResolveRelativeTime(4mo) = %v", got)
	}
	if got := ResolveRelativeTime("soon", now); got != nil {
		t.Fatalf("expected nil for unparseable fragment, got %v", got)
	}
}

func TestNormalizeUploadDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-06-15T12:30:00+02:00", "2024-06-15T10:30:00Z"},
		{"2024-06-15T12:30:00", "2024-06-15T12:30:00Z"},
		{"2024-06-15 12:30:00", "2024-06-15T12:30:00Z"},
		{"2024-06-15", "2024-06-15T00:00:00Z"},
	}

	for _, tt := range tests {
		got := NormalizeUploadDate(tt.in)
		if got == nil || *got != tt.want {
			t.Fatalf("NormalizeUploadDate(%q) = %v, want %q", tt.in, got, tt.want)
		}
	}

	if got := NormalizeUploadDate("yesterday"); got != nil {
		t.Fatalf("expected nil for unparseable date, got %q", *got)
	}
	if got := NormalizeUploadDate(""); got != nil {
		t.Fatalf("expected nil for empty date, got %q", *got)
	}
}

func ptr(f float64) *float64 { return &f }
