package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// Page is one narrated slide of a story.
type Page struct {
	ImageIndex int    `json:"imageIndex"`
	Text       string `json:"text"`

	// Narration holds raw PCM16 mono 24 kHz bytes. Empty means the page is
	// shown for the fallback duration.
	Narration []byte `json:"-"`

	// NarrationErr is set when the transported payload could not be decoded.
	NarrationErr error `json:"-"`
}

// HasNarration reports whether the page carries audio to play.
func (p *Page) HasNarration() bool {
	return len(p.Narration) > 0
}

// Story is an ordered list of pages under a title. It is treated as
// immutable once handed to the engine.
type Story struct {
	Title string `json:"title"`
	Pages []Page `json:"pages"`
}

// Len returns the number of pages.
func (s *Story) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Pages)
}

// Page returns page i and whether it exists.
func (s *Story) Page(i int) (Page, bool) {
	if s == nil || i < 0 || i >= len(s.Pages) {
		return Page{}, false
	}
	return s.Pages[i], true
}

// wirePage mirrors the JSON produced by the content generation service.
type wirePage struct {
	ImageIndex  int    `json:"imageIndex"`
	Text        string `json:"text"`
	AudioBase64 string `json:"audioBase64,omitempty"`
}

type wireStory struct {
	Title string     `json:"title"`
	Pages []wirePage `json:"pages"`
}

// ParseStory decodes a story document. Narration payloads are base64
// decoded eagerly; a malformed payload does not fail the story, the page
// keeps NarrationErr and plays as a fallback page.
func ParseStory(data []byte) (*Story, error) {
	var w wireStory
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse story: %w", err)
	}
	if len(w.Pages) == 0 {
		return nil, fmt.Errorf("story %q has no pages", w.Title)
	}

	st := &Story{Title: w.Title, Pages: make([]Page, len(w.Pages))}
	for i, wp := range w.Pages {
		if wp.ImageIndex < 0 {
			return nil, fmt.Errorf("page %d: negative image index %d", i, wp.ImageIndex)
		}
		p := Page{ImageIndex: wp.ImageIndex, Text: wp.Text}
		if b64 := strings.TrimSpace(wp.AudioBase64); b64 != "" {
			raw, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				slog.Warn("Story: narration payload is not valid base64", "page", i, "error", err)
				p.NarrationErr = err
			} else {
				p.Narration = raw
			}
		}
		st.Pages[i] = p
	}
	return st, nil
}

// MarshalJSON writes the story back in its wire form.
func (s *Story) MarshalJSON() ([]byte, error) {
	w := wireStory{Title: s.Title, Pages: make([]wirePage, len(s.Pages))}
	for i, p := range s.Pages {
		w.Pages[i] = wirePage{ImageIndex: p.ImageIndex, Text: p.Text}
		if len(p.Narration) > 0 {
			w.Pages[i].AudioBase64 = base64.StdEncoding.EncodeToString(p.Narration)
		}
	}
	return json.Marshal(w)
}

// MaxImageIndex returns the largest image index referenced by any page.
func (s *Story) MaxImageIndex() int {
	hi := -1
	for _, p := range s.Pages {
		if p.ImageIndex > hi {
			hi = p.ImageIndex
		}
	}
	return hi
}
