package imgdev

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fprint-service/internal/protocol"
	"fprint-service/pkg/driver"
)

// scriptedTransport records writes and replays reads in fixed chunks
type scriptedTransport struct {
	written [][]byte
	reply   []byte
	chunk   int
}

func (s *scriptedTransport) Write(ctx context.Context, data []byte) error {
	s.written = append(s.written, append([]byte(nil), data...))
	return nil
}

func (s *scriptedTransport) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	n := min(maxBytes, s.chunk, len(s.reply))
	if n == 0 {
		return nil, driver.ErrTransport
	}
	out := s.reply[:n]
	s.reply = s.reply[n:]
	return out, nil
}

func frameReply(status byte, w, h int) []byte {
	reply := protocol.EncodeFrameHeader(protocol.FrameHeader{Status: status, Width: uint16(w), Height: uint16(h)})
	for i := 0; i < w*h; i++ {
		reply = append(reply, byte(i))
	}
	return reply
}

func TestTransportSourceReadsChunkedFrame(t *testing.T) {
	tr := &scriptedTransport{reply: frameReply(protocol.FrameStatusOK, 10, 6), chunk: 5}
	src := NewTransportSource(tr, 10, 6)

	img, err := src.ReadFrame(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, [][]byte{{protocol.FrameCmdCapture}}, tr.written)
	assert.Equal(t, 10, img.Width())
	assert.Equal(t, 6, img.Height())
	assert.Equal(t, byte(59), img.Pixel(9, 5))
}

func TestTransportSourceUnconditionalCommand(t *testing.T) {
	tr := &scriptedTransport{reply: frameReply(protocol.FrameStatusOK, 4, 4), chunk: 64}
	src := NewTransportSource(tr, 0, 0)

	_, err := src.ReadFrame(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{protocol.FrameCmdCaptureNow}}, tr.written)
}

func TestTransportSourceErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply []byte
		want  error
	}{
		{"no finger", frameReply(protocol.FrameStatusNoFinger, 0, 0), driver.ErrNoFingerDetected},
		{"unknown status", frameReply(0x7f, 4, 4), driver.ErrProtocol},
		{"bad magic", append([]byte("XX"), make([]byte, 6)...), driver.ErrProtocol},
		{"wrong geometry", frameReply(protocol.FrameStatusOK, 5, 4), driver.ErrProtocol},
		{"truncated raster", frameReply(protocol.FrameStatusOK, 4, 4)[:12], driver.ErrTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewTransportSource(&scriptedTransport{reply: tt.reply, chunk: 64}, 4, 4)
			_, err := src.ReadFrame(context.Background(), false)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
