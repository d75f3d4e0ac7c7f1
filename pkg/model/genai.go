package model

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// ErrNoAudio is returned when a speech response carries no inline audio.
var ErrNoAudio = errors.New("no audio data returned")

// NarrationFromResponse extracts the raw PCM narration from a Gemini
// speech response. Only audio/* inline parts of the first candidate count.
func NarrationFromResponse(resp *genai.GenerateContentResponse) ([]byte, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned: %w", ErrNoAudio)
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return nil, ErrNoAudio
	}

	var pcm []byte
	for _, part := range cand.Content.Parts {
		if part == nil || part.InlineData == nil {
			continue
		}
		mime := part.InlineData.MIMEType
		if mime != "" && !strings.HasPrefix(mime, "audio/") {
			continue
		}
		pcm = append(pcm, part.InlineData.Data...)
	}
	if len(pcm) == 0 {
		return nil, ErrNoAudio
	}
	return pcm, nil
}

// WithNarration returns a copy of the story with page i narrated by pcm.
func (s *Story) WithNarration(i int, pcm []byte) (*Story, error) {
	if i < 0 || i >= len(s.Pages) {
		return nil, fmt.Errorf("page %d out of range [0,%d)", i, len(s.Pages))
	}
	cp := &Story{Title: s.Title, Pages: make([]Page, len(s.Pages))}
	copy(cp.Pages, s.Pages)
	cp.Pages[i].Narration = pcm
	cp.Pages[i].NarrationErr = nil
	return cp, nil
}
