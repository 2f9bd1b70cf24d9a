package llm

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decoderOver(stream string) FrameDecoder {
	return NewSSEDecoder(io.NopCloser(strings.NewReader(stream)))
}

func TestSSEDecoderDeltas(t *testing.T) {
	stream := "" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"EXCELENTÍSSIMO \"}]}}]}\n" +
		"\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"SENHOR DOUTOR\"}]},\"finishReason\":\"STOP\"}]}\n"

	d := decoderOver(stream)

	frame, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameDelta, frame.Type)
	assert.Equal(t, "EXCELENTÍSSIMO ", frame.Text)

	// The STOP chunk still carries text; the delta comes before the
	// terminal frame
	frame, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameDelta, frame.Type)
	assert.Equal(t, "SENHOR DOUTOR", frame.Text)

	frame, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameDone, frame.Type)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEDecoderSkipsFramingNoise(t *testing.T) {
	stream := "" +
		": keep-alive\n" +
		"event: message\n" +
		"data:\n" +
		"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"olá\"}]}}]}\n"

	d := decoderOver(stream)

	frame, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameDelta, frame.Type)
	assert.Equal(t, "olá", frame.Text)
}

func TestSSEDecoderInBandError(t *testing.T) {
	stream := "data: {\"error\":{\"code\":429,\"message\":\"quota exceeded\"}}\n"

	d := decoderOver(stream)

	frame, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "quota exceeded", frame.Text)
}

func TestSSEDecoderNonStopFinishReason(t *testing.T) {
	stream := "data: {\"candidates\":[{\"content\":{\"parts\":[]},\"finishReason\":\"SAFETY\"}]}\n"

	d := decoderOver(stream)

	frame, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameError, frame.Type)
	assert.Contains(t, frame.Text, "SAFETY")
}

func TestSSEDecoderCleanEOF(t *testing.T) {
	d := decoderOver("data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"x\"}]}}]}\n")

	frame, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameDelta, frame.Type)

	frame, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, FrameDone, frame.Type)
}

func TestSSEDecoderMalformedPayload(t *testing.T) {
	d := decoderOver("data: {not-json\n")

	_, err := d.Next()
	assert.Error(t, err)
}
