package model

// Result is the single-photo character analysis shown on a result card.
type Result struct {
	CharacterTitle string `json:"characterTitle"`
	Description    string `json:"description"`
	Emoji          string `json:"emoji"`
	Subtitle       string `json:"subtitle"`
}

// Story turns the result into a one-page story over image 0 so that the
// card and multi-page stories share the same playback and capture path.
func (r *Result) Story(narration []byte) *Story {
	return &Story{
		Title: r.CharacterTitle,
		Pages: []Page{{
			ImageIndex: 0,
			Text:       r.Description,
			Narration:  narration,
		}},
	}
}
