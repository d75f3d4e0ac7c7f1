package recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/draw"
)

func testFrame(c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	draw.Draw(img, img.Rect, image.NewUniform(c), image.Point{}, draw.Src)
	return img
}

// riffChunks walks the chunks directly inside a RIFF/LIST body.
func riffChunks(t *testing.T, body []byte) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte)
	for len(body) >= 8 {
		id := string(body[0:4])
		size := int(binary.LittleEndian.Uint32(body[4:8]))
		require.LessOrEqual(t, 8+size, len(body), "chunk %s overruns its parent", id)
		if _, seen := out[id]; !seen {
			out[id] = body[8 : 8+size]
		}
		body = body[8+size+size&1:]
	}
	return out
}

func TestAVIEncoder_Layout(t *testing.T) {
	var chunks [][]byte
	enc := newAVIEncoder(32, 24, 30, 48000, func(b []byte) { chunks = append(chunks, b) })

	require.NoError(t, enc.WriteFrame(testFrame(color.RGBA{R: 255, A: 255})))
	require.NoError(t, enc.WriteAudio(make([]int16, 1600)))
	require.NoError(t, enc.WriteFrame(testFrame(color.RGBA{G: 255, A: 255})))
	require.NoError(t, enc.WriteAudio([]int16{1, 2, 3}))
	require.NoError(t, enc.WriteAudio(nil))

	prefix, err := enc.Finish(context.Background())
	require.NoError(t, err)

	file := append([]byte(nil), prefix...)
	for _, c := range chunks {
		file = append(file, c...)
	}

	require.Equal(t, "RIFF", string(file[0:4]))
	assert.Equal(t, uint32(len(file)-8), binary.LittleEndian.Uint32(file[4:8]))
	require.Equal(t, "AVI ", string(file[8:12]))

	top := riffChunks(t, file[12:])
	require.Contains(t, top, "LIST")
	require.Contains(t, top, "idx1")

	hdrl := top["LIST"]
	require.Equal(t, "hdrl", string(hdrl[0:4]))
	avih := riffChunks(t, hdrl[4:])["avih"]
	require.Len(t, avih, 56)
	assert.Equal(t, uint32(33333), binary.LittleEndian.Uint32(avih[0:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(avih[16:20]), "total frames")
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(avih[24:28]), "streams")
	assert.Equal(t, uint32(32), binary.LittleEndian.Uint32(avih[32:36]))
	assert.Equal(t, uint32(24), binary.LittleEndian.Uint32(avih[36:40]))

	idx := top["idx1"]
	assert.Len(t, idx, 4*16, "two frames and two audio chunks")
	assert.Equal(t, "00dc", string(idx[0:4]))
	assert.Equal(t, "01wb", string(idx[16:20]))

	// Index offsets point at the chunk headers relative to the movi tag.
	movi := bytes.Index(file, []byte("movi"))
	require.Greater(t, movi, 0)
	off := int(binary.LittleEndian.Uint32(idx[8:12]))
	size := int(binary.LittleEndian.Uint32(idx[12:16]))
	require.Equal(t, "00dc", string(file[movi+off:movi+off+4]))

	frame, err := jpeg.Decode(bytes.NewReader(file[movi+off+8 : movi+off+8+size]))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 32, 24), frame.Bounds())

	assert.Equal(t, uint32(6), binary.LittleEndian.Uint32(idx[16*3+12:16*3+16]), "second audio chunk size")
}
