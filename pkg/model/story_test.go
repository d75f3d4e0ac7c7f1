package model

import (
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func TestParseStory(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	doc := `{"title":"Party","pages":[
		{"imageIndex":0,"text":"one","audioBase64":"` + base64.StdEncoding.EncodeToString(pcm) + `"},
		{"imageIndex":1,"text":"two"},
		{"imageIndex":0,"text":"three","audioBase64":"***"}
	]}`

	st, err := ParseStory([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, "Party", st.Title)
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, pcm, st.Pages[0].Narration)
	assert.True(t, st.Pages[0].HasNarration())
	assert.False(t, st.Pages[1].HasNarration())
	assert.False(t, st.Pages[2].HasNarration())
	assert.Error(t, st.Pages[2].NarrationErr)
	assert.Equal(t, 1, st.MaxImageIndex())

	_, ok := st.Page(3)
	assert.False(t, ok)
	_, ok = st.Page(-1)
	assert.False(t, ok)
}

func TestParseStory_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"Not JSON", `{`},
		{"No Pages", `{"title":"x","pages":[]}`},
		{"Negative Index", `{"title":"x","pages":[{"imageIndex":-1,"text":"a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStory([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestStory_MarshalJSON(t *testing.T) {
	st := &Story{Title: "T", Pages: []Page{{ImageIndex: 2, Text: "a", Narration: []byte{1, 2}}}}
	data, err := st.MarshalJSON()
	require.NoError(t, err)

	back, err := ParseStory(data)
	require.NoError(t, err)
	assert.Equal(t, st.Pages[0].Narration, back.Pages[0].Narration)
	assert.Equal(t, 2, back.Pages[0].ImageIndex)
}

func TestResult_Story(t *testing.T) {
	r := &Result{CharacterTitle: "The Sleepy Lion", Description: "Yawns a lot", Emoji: "🦁😴"}
	st := r.Story([]byte{0, 0})

	require.Equal(t, 1, st.Len())
	assert.Equal(t, "The Sleepy Lion", st.Title)
	assert.Equal(t, "Yawns a lot", st.Pages[0].Text)
	assert.Equal(t, 0, st.Pages[0].ImageIndex)
	assert.Equal(t, []byte{0, 0}, st.Pages[0].Narration)
}

func TestImageSequence_At(t *testing.T) {
	a := image.NewRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewRGBA(image.Rect(0, 0, 2, 2))

	seq := ImageSequence{a, nil, b}

	img, ok := seq.At(2)
	assert.True(t, ok)
	assert.Equal(t, b, img)

	img, ok = seq.At(1)
	assert.True(t, ok, "nil slot falls back to image 0")
	assert.Equal(t, a, img)

	img, ok = seq.At(9)
	assert.True(t, ok)
	assert.Equal(t, a, img)

	_, ok = ImageSequence{}.At(0)
	assert.False(t, ok)
	_, ok = ImageSequence{nil}.At(0)
	assert.False(t, ok)
}

func TestLoadImages(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.png")

	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	f, err := os.Create(good)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(bad, []byte("nope"), 0o644))

	seq, err := LoadImages([]string{good, bad})
	require.NoError(t, err)
	require.Len(t, seq, 2)
	assert.NotNil(t, seq[0])
	assert.Nil(t, seq[1])
	assert.Equal(t, 4, seq[0].Bounds().Dx())

	_, err = LoadImages([]string{bad})
	assert.Error(t, err)
}

func TestNarrationFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "ignored"},
				{InlineData: &genai.Blob{MIMEType: "audio/L16;codec=pcm;rate=24000", Data: []byte{1, 2}}},
				{InlineData: &genai.Blob{Data: []byte{3, 4}}},
			}},
		}},
	}
	pcm, err := NarrationFromResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, pcm)

	_, err = NarrationFromResponse(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, ErrNoAudio)

	_, err = NarrationFromResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "x"}}}}},
	})
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestStory_WithNarration(t *testing.T) {
	st := &Story{Title: "T", Pages: []Page{{Text: "a"}, {Text: "b"}}}
	cp, err := st.WithNarration(1, []byte{9, 9})
	require.NoError(t, err)
	assert.True(t, cp.Pages[1].HasNarration())
	assert.False(t, st.Pages[1].HasNarration(), "source story untouched")

	_, err = st.WithNarration(5, nil)
	assert.Error(t, err)
}
