package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(t *testing.T, d Decoder, chunks ...[]byte) [][]byte {
	t.Helper()
	var out [][]byte
	for _, c := range chunks {
		frames, err := d.Feed(c)
		require.NoError(t, err)
		out = append(out, frames...)
	}
	return out
}

// splitAt 按切点切分字节流
func splitAt(stream []byte, cuts []int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, c := range cuts {
		chunks = append(chunks, stream[prev:c])
		prev = c
	}
	return append(chunks, stream[prev:])
}

func TestEscapeUnescape(t *testing.T) {
	in := []byte{0x30, 0x7E, 0x08, 0x7D, 0x55}
	esc := Escape(in)
	assert.Equal(t, []byte{0x30, 0x7D, 0x02, 0x08, 0x7D, 0x01, 0x55}, esc)

	out, err := Unescape(esc)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = Unescape([]byte{0x01, 0x7D, 0x03})
	assert.ErrorIs(t, err, ErrBadEscape)
	_, err = Unescape([]byte{0x01, 0x7D})
	assert.ErrorIs(t, err, ErrBadEscape)
}

func TestEncode_NoInnerMarker(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		payload := make([]byte, r.Intn(300))
		r.Read(payload)
		enc := Encode(payload)
		require.Equal(t, MarkerByte, enc[0])
		require.Equal(t, MarkerByte, enc[len(enc)-1])
		require.NotContains(t, string(enc[1:len(enc)-1]), string([]byte{MarkerByte}))
	}
}

func TestDelimiter_RoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	d := NewDelimiterDecoder(1024)
	for i := 0; i < 200; i++ {
		payload := make([]byte, 1+r.Intn(1024))
		r.Read(payload)
		frames := feedAll(t, d, Encode(payload))
		require.Len(t, frames, 1)
		require.True(t, bytes.Equal(payload, frames[0]))
	}
}

func TestDelimiter_ChunkBoundaryIndependence(t *testing.T) {
	payloads := [][]byte{
		{0x01, 0x02, 0x7E, 0x03},
		{0x7D, 0x7D, 0x7E, 0x7E},
		{0x00},
		bytes.Repeat([]byte{0xAA, 0x7E}, 40),
	}
	var stream []byte
	for _, p := range payloads {
		stream = append(stream, Encode(p)...)
	}
	// 再追加一段相邻帧共用标识位的数据
	stream = append(stream, MarkerByte)
	for _, p := range payloads {
		stream = append(stream, Escape(p)...)
		stream = append(stream, MarkerByte)
	}
	want := append(append([][]byte{}, payloads...), payloads...)

	whole := feedAll(t, NewDelimiterDecoder(0), stream)
	require.Equal(t, want, whole)

	r := rand.New(rand.NewSource(1))
	for round := 0; round < 300; round++ {
		n := r.Intn(10)
		cuts := make([]int, 0, n)
		for j := 0; j < n; j++ {
			cuts = append(cuts, r.Intn(len(stream)+1))
		}
		// 切点需有序
		for a := 1; a < len(cuts); a++ {
			for b := a; b > 0 && cuts[b-1] > cuts[b]; b-- {
				cuts[b-1], cuts[b] = cuts[b], cuts[b-1]
			}
		}
		got := feedAll(t, NewDelimiterDecoder(0), splitAt(stream, cuts)...)
		require.Equal(t, whole, got, "cuts=%v", cuts)
	}

	// 逐字节输入
	d := NewDelimiterDecoder(0)
	var got [][]byte
	for _, b := range stream {
		got = append(got, feedAll(t, d, []byte{b})...)
	}
	assert.Equal(t, whole, got)
}

func TestDelimiter_StickyAndEmptyFrames(t *testing.T) {
	d := NewDelimiterDecoder(0)
	stream := []byte{0xFF, 0xFF, 0x7E, 0x7E, 0x7E, 0x01, 0x7E, 0x7E, 0x02, 0x03, 0x7E}
	frames := feedAll(t, d, stream)
	assert.Equal(t, [][]byte{{0x01}, {0x02, 0x03}}, frames)
	assert.Zero(t, d.Buffered())

	// 相邻帧共用一个标识位
	frames = feedAll(t, NewDelimiterDecoder(0), []byte{0x7E, 0x01, 0x7E, 0x02, 0x7E, 0x03, 0x7E})
	assert.Equal(t, [][]byte{{0x01}, {0x02}, {0x03}}, frames)
}

func TestDelimiter_ClosingMarkerOpensNextFrame(t *testing.T) {
	// 正常帧与被丢弃帧之后的处理一致：结束标识位都作为下一帧的起始
	d := NewDelimiterDecoder(4)
	frames := feedAll(t, d, []byte{0x7E, 0x01, 0x7E, 0x02, 0x7E})
	assert.Equal(t, [][]byte{{0x01}, {0x02}}, frames)

	frames, err := d.Feed([]byte{0x7E, 1, 2, 3, 4, 5, 0x7E, 0x02, 0x7E})
	require.ErrorIs(t, err, ErrFrameTooLong)
	assert.Equal(t, [][]byte{{0x02}}, frames)

	frames, err = d.Feed([]byte{0x7E, 0x7D, 0x09, 0x7E, 0x03, 0x7E})
	require.ErrorIs(t, err, ErrBadEscape)
	assert.Equal(t, [][]byte{{0x03}}, frames)
	assert.Zero(t, d.Buffered())
}

func TestDelimiter_FrameTooLong(t *testing.T) {
	d := NewDelimiterDecoder(4)
	stream := []byte{0x7E, 1, 2, 3, 4, 5, 6, 0x7E, 0x7E, 9, 0x7E}
	frames, err := d.Feed(stream)
	require.ErrorIs(t, err, ErrFrameTooLong)
	// 超长帧丢弃但不截断输出，随后一帧正常
	assert.Equal(t, [][]byte{{9}}, frames)

	// 恰好等于上限的帧可以通过
	frames, err = d.Feed([]byte{0x7E, 1, 2, 3, 4, 0x7E})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2, 3, 4}}, frames)
}

func TestDelimiter_BadEscapeDropsOnlyThatFrame(t *testing.T) {
	d := NewDelimiterDecoder(0)
	stream := []byte{0x7E, 0x01, 0x7E, 0x7E, 0x05, 0x7D, 0x09, 0x06, 0x7E, 0x7E, 0x07, 0x7E}
	frames, err := d.Feed(stream)
	require.ErrorIs(t, err, ErrBadEscape)
	assert.Equal(t, [][]byte{{0x01}, {0x07}}, frames)
}

func TestDelimiter_EscapeAcrossChunks(t *testing.T) {
	d := NewDelimiterDecoder(0)
	frames := feedAll(t, d, []byte{0x7E, 0x11, 0x7D}, []byte{0x02, 0x7D}, []byte{0x01, 0x7E})
	assert.Equal(t, [][]byte{{0x11, 0x7E, 0x7D}}, frames)
}

func TestParseFraming(t *testing.T) {
	cases := map[string]Framing{
		"":             FramingDelimiter,
		"Delimiter":    FramingDelimiter,
		"lengthfield":  FramingLengthField,
		"length-field": FramingLengthField,
		"multi":        FramingMulti,
	}
	for in, want := range cases {
		got, err := ParseFraming(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFraming("xml")
	assert.Error(t, err)
}
