package recorder

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
)

// AVI flags.
const (
	avifHasIndex      = 0x10
	avifIsInterleaved = 0x100
	aviifKeyframe     = 0x10
)

type aviMainHeader struct {
	MicroSecPerFrame    uint32
	MaxBytesPerSec      uint32
	PaddingGranularity  uint32
	Flags               uint32
	TotalFrames         uint32
	InitialFrames       uint32
	Streams             uint32
	SuggestedBufferSize uint32
	Width               uint32
	Height              uint32
	Reserved            [4]uint32
}

type aviStreamHeader struct {
	Type                [4]byte
	Handler             [4]byte
	Flags               uint32
	Priority            uint16
	Language            uint16
	InitialFrames       uint32
	Scale               uint32
	Rate                uint32
	Start               uint32
	Length              uint32
	SuggestedBufferSize uint32
	Quality             uint32
	SampleSize          uint32
	Frame               [4]int16
}

type bitmapInfoHeader struct {
	Size          uint32
	Width         int32
	Height        int32
	Planes        uint16
	BitCount      uint16
	Compression   [4]byte
	SizeImage     uint32
	XPelsPerMeter int32
	YPelsPerMeter int32
	ClrUsed       uint32
	ClrImportant  uint32
}

type waveFormatEx struct {
	FormatTag      uint16
	Channels       uint16
	SamplesPerSec  uint32
	AvgBytesPerSec uint32
	BlockAlign     uint16
	BitsPerSample  uint16
	CbSize         uint16
}

type aviIndexEntry struct {
	ID     [4]byte
	Flags  uint32
	Offset uint32
	Size   uint32
}

func fourCC(s string) [4]byte {
	var b [4]byte
	copy(b[:], s)
	return b
}

// aviEncoder writes Motion-JPEG video and PCM16 mono audio into an AVI
// container. The movi chunks are emitted while capturing; the RIFF header
// depends on the final sizes and is returned by Finish as a prefix.
type aviEncoder struct {
	width, height int
	fps           int
	rate          int
	quality       int
	emit          func([]byte)

	moviSize   int
	index      []aviIndexEntry
	frames     int
	audioBytes int
	maxVideo   int
	maxAudio   int

	jpegBuf bytes.Buffer
}

func newAVIEncoder(width, height, fps, rate int, emit func([]byte)) *aviEncoder {
	return &aviEncoder{
		width:   width,
		height:  height,
		fps:     fps,
		rate:    rate,
		quality: 85,
		emit:    emit,
	}
}

func (a *aviEncoder) WriteFrame(img *image.RGBA) error {
	a.jpegBuf.Reset()
	if err := jpeg.Encode(&a.jpegBuf, img, &jpeg.Options{Quality: a.quality}); err != nil {
		return fmt.Errorf("avi: encode frame %d: %w", a.frames, err)
	}
	a.writeChunk("00dc", a.jpegBuf.Bytes(), aviifKeyframe)
	a.frames++
	a.maxVideo = max(a.maxVideo, a.jpegBuf.Len())
	return nil
}

func (a *aviEncoder) WriteAudio(pcm []int16) error {
	if len(pcm) == 0 {
		return nil
	}
	data := make([]byte, 2*len(pcm))
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[2*i:], uint16(s))
	}
	a.writeChunk("01wb", data, aviifKeyframe)
	a.audioBytes += len(data)
	a.maxAudio = max(a.maxAudio, len(data))
	return nil
}

func (a *aviEncoder) writeChunk(id string, data []byte, flags uint32) {
	pad := len(data) & 1
	chunk := make([]byte, 8+len(data)+pad)
	copy(chunk[0:4], id)
	binary.LittleEndian.PutUint32(chunk[4:8], uint32(len(data)))
	copy(chunk[8:], data)

	a.index = append(a.index, aviIndexEntry{
		ID:     fourCC(id),
		Flags:  flags,
		Offset: uint32(4 + a.moviSize), // from the 'movi' tag
		Size:   uint32(len(data)),
	})
	a.moviSize += len(chunk)
	a.emit(chunk)
}

// Finish emits the idx1 index and returns the RIFF header that belongs in
// front of everything emitted so far.
func (a *aviEncoder) Finish(context.Context) ([]byte, error) {
	var idx bytes.Buffer
	idx.WriteString("idx1")
	_ = binary.Write(&idx, binary.LittleEndian, uint32(16*len(a.index)))
	if err := binary.Write(&idx, binary.LittleEndian, a.index); err != nil {
		return nil, fmt.Errorf("avi: write index: %w", err)
	}
	a.emit(idx.Bytes())

	hdrl, err := a.headerList()
	if err != nil {
		return nil, err
	}

	moviList := 4 + a.moviSize
	riffSize := 4 + len(hdrl) + 8 + moviList + idx.Len()

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(riffSize))
	out.WriteString("AVI ")
	out.Write(hdrl)
	out.WriteString("LIST")
	_ = binary.Write(&out, binary.LittleEndian, uint32(moviList))
	out.WriteString("movi")
	return out.Bytes(), nil
}

func (a *aviEncoder) Abort() {}

func (a *aviEncoder) headerList() ([]byte, error) {
	const blockAlign = 2
	bufSize := uint32(max(a.maxVideo, a.maxAudio) + 8)

	main := aviMainHeader{
		MicroSecPerFrame:    uint32(1_000_000 / a.fps),
		MaxBytesPerSec:      uint32(a.maxVideo*a.fps + a.rate*blockAlign),
		Flags:               avifHasIndex | avifIsInterleaved,
		TotalFrames:         uint32(a.frames),
		Streams:             2,
		SuggestedBufferSize: bufSize,
		Width:               uint32(a.width),
		Height:              uint32(a.height),
	}
	video := aviStreamHeader{
		Type:                fourCC("vids"),
		Handler:             fourCC("MJPG"),
		Scale:               1,
		Rate:                uint32(a.fps),
		Length:              uint32(a.frames),
		SuggestedBufferSize: uint32(a.maxVideo),
		Quality:             0xFFFFFFFF,
		Frame:               [4]int16{0, 0, int16(a.width), int16(a.height)},
	}
	videoFmt := bitmapInfoHeader{
		Size:        40,
		Width:       int32(a.width),
		Height:      int32(a.height),
		Planes:      1,
		BitCount:    24,
		Compression: fourCC("MJPG"),
		SizeImage:   uint32(a.width * a.height * 3),
	}
	audio := aviStreamHeader{
		Type:                fourCC("auds"),
		Scale:               blockAlign,
		Rate:                uint32(a.rate * blockAlign),
		Length:              uint32(a.audioBytes / blockAlign),
		SuggestedBufferSize: uint32(a.maxAudio),
		Quality:             0xFFFFFFFF,
		SampleSize:          blockAlign,
	}
	audioFmt := waveFormatEx{
		FormatTag:      1,
		Channels:       1,
		SamplesPerSec:  uint32(a.rate),
		AvgBytesPerSec: uint32(a.rate * blockAlign),
		BlockAlign:     blockAlign,
		BitsPerSample:  16,
	}

	var body bytes.Buffer
	for _, part := range []struct {
		list string
		ids  []string
		vals []any
	}{
		{"", []string{"avih"}, []any{main}},
		{"strl", []string{"strh", "strf"}, []any{video, videoFmt}},
		{"strl", []string{"strh", "strf"}, []any{audio, audioFmt}},
	} {
		var inner bytes.Buffer
		for i, v := range part.vals {
			if err := writeStructChunk(&inner, part.ids[i], v); err != nil {
				return nil, err
			}
		}
		if part.list == "" {
			body.Write(inner.Bytes())
			continue
		}
		writeList(&body, part.list, inner.Bytes())
	}

	var hdrl bytes.Buffer
	writeList(&hdrl, "hdrl", body.Bytes())
	return hdrl.Bytes(), nil
}

func writeStructChunk(w *bytes.Buffer, id string, v any) error {
	var data bytes.Buffer
	if err := binary.Write(&data, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("avi: encode %s: %w", id, err)
	}
	w.WriteString(id)
	_ = binary.Write(w, binary.LittleEndian, uint32(data.Len()))
	w.Write(data.Bytes())
	if data.Len()&1 == 1 {
		w.WriteByte(0)
	}
	return nil
}

func writeList(w *bytes.Buffer, kind string, body []byte) {
	w.WriteString("LIST")
	_ = binary.Write(w, binary.LittleEndian, uint32(4+len(body)))
	w.WriteString(kind)
	w.Write(body)
}
