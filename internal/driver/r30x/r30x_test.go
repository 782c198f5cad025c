package r30x

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fprint-service/pkg/devicetypes"
	"fprint-service/pkg/driver"
)

// fakeModule emulates a module behind a transport
type fakeModule struct {
	t *testing.T

	password uint32
	genImg   []byte
	img2tz   []byte
	regModel byte
	match    byte

	chars      map[byte][]byte
	downBuffer byte
	downData   []byte
	commands   []byte
	out        []byte
}

func newFakeModule(t *testing.T) *fakeModule {
	return &fakeModule{t: t, chars: map[byte][]byte{}}
}

func (m *fakeModule) reply(pid byte, payload []byte) {
	m.out = append(m.out, Packet{Address: DefaultAddress, PID: pid, Payload: payload}.Marshal()...)
}

func (m *fakeModule) ack(code byte, extra ...byte) {
	m.reply(PIDAck, append([]byte{code}, extra...))
}

func (m *fakeModule) next(queue *[]byte) byte {
	if len(*queue) == 0 {
		return AckOK
	}
	code := (*queue)[0]
	*queue = (*queue)[1:]
	return code
}

func (m *fakeModule) sendData(data []byte) {
	chunks := lo.Chunk(data, 128)
	for i, c := range chunks {
		pid := PIDData
		if i == len(chunks)-1 {
			pid = PIDEndData
		}
		m.reply(pid, c)
	}
}

func (m *fakeModule) Write(ctx context.Context, data []byte) error {
	p, n, err := ParsePacket(data)
	require.NoError(m.t, err)
	require.Equal(m.t, len(data), n)

	switch p.PID {
	case PIDData, PIDEndData:
		m.downData = append(m.downData, p.Payload...)
		if p.PID == PIDEndData {
			m.chars[m.downBuffer] = m.downData
			m.downData = nil
		}
		return nil
	case PIDCommand:
	default:
		m.t.Fatalf("unexpected pid 0x%02x", p.PID)
	}

	cmd := p.Payload[0]
	m.commands = append(m.commands, cmd)

	switch cmd {
	case CmdVfyPwd:
		if bytes.Equal(p.Payload[1:], []byte{byte(m.password >> 24), byte(m.password >> 16), byte(m.password >> 8), byte(m.password)}) {
			m.ack(AckOK)
		} else {
			m.ack(AckWrongPassword)
		}
	case CmdGenImg:
		m.ack(m.next(&m.genImg))
	case CmdImg2Tz:
		code := m.next(&m.img2tz)
		if code == AckOK {
			m.chars[p.Payload[1]] = bytes.Repeat([]byte{p.Payload[1]}, 300)
		}
		m.ack(code)
	case CmdUpChar:
		m.ack(AckOK)
		m.sendData(m.chars[p.Payload[1]])
	case CmdDownChar:
		m.downBuffer = p.Payload[1]
		m.ack(AckOK)
	case CmdRegModel:
		if m.regModel == AckOK {
			model := append(append([]byte{}, m.chars[1]...), m.chars[2]...)
			m.chars[1], m.chars[2] = model, model
		}
		m.ack(m.regModel)
	case CmdMatch:
		m.ack(m.match, 0x00, 0x64)
	case CmdUpImage:
		m.ack(AckOK)
		m.sendData(bytes.Repeat([]byte{0xF0}, ImageWidth*ImageHeight/2))
	default:
		m.t.Fatalf("unexpected instruction 0x%02x", cmd)
	}
	return nil
}

// Read hands out replies in small pieces, as a UART would
func (m *fakeModule) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	if len(m.out) == 0 {
		return nil, driver.ErrTransport
	}
	n := min(maxBytes, 7, len(m.out))
	chunk := m.out[:n]
	m.out = m.out[n:]
	return chunk, nil
}

// muteLine accepts writes and never answers
type muteLine struct{}

func (muteLine) Write(ctx context.Context, data []byte) error { return nil }

func (muteLine) Read(ctx context.Context, maxBytes int) ([]byte, error) {
	return nil, driver.ErrTransport
}

func openSession(t *testing.T, m *fakeModule) *Session {
	t.Helper()
	d := New(Config{PollInterval: time.Millisecond}, zap.NewNop())
	s, err := d.Open(context.Background(), m, DevType)
	require.NoError(t, err)
	return s.(*Session)
}

func TestPacketRoundTrip(t *testing.T) {
	p := Packet{Address: DefaultAddress, PID: PIDCommand, Payload: []byte{CmdGenImg}}
	raw := p.Marshal()

	assert.Equal(t, []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x03, 0x01, 0x00, 0x05}, raw)

	got, n, err := ParsePacket(append(raw, 0xAA))
	require.NoError(t, err)
	assert.Equal(t, len(raw), n)
	assert.Equal(t, p, got)
}

func TestParsePacketErrors(t *testing.T) {
	raw := Packet{Address: 1, PID: PIDAck, Payload: []byte{0x00}}.Marshal()

	_, _, err := ParsePacket(raw[:5])
	assert.ErrorIs(t, err, errIncomplete)

	bad := append([]byte(nil), raw...)
	bad[len(bad)-1]++
	_, _, err = ParsePacket(bad)
	assert.ErrorIs(t, err, driver.ErrProtocol)

	bad = append([]byte(nil), raw...)
	bad[0] = 0x00
	_, _, err = ParsePacket(bad)
	assert.ErrorIs(t, err, driver.ErrProtocol)
}

func TestOpenWrongPassword(t *testing.T) {
	m := newFakeModule(t)
	m.password = 0x1234

	_, err := New(Config{}, zap.NewNop()).Open(context.Background(), m, DevType)
	assert.ErrorIs(t, err, driver.ErrProtocol)
}

func TestHandshake(t *testing.T) {
	d := New(Config{Password: 0x1234}, zap.NewNop())

	m := newFakeModule(t)
	m.password = 0x1234
	require.NoError(t, d.Handshake(context.Background(), m))
	assert.Equal(t, []byte{CmdVfyPwd}, m.commands)

	m = newFakeModule(t)
	assert.ErrorIs(t, d.Handshake(context.Background(), m), driver.ErrProtocol)

	// Nothing answering on the line
	assert.ErrorIs(t, d.Handshake(context.Background(), muteLine{}), driver.ErrTransport)
}

func TestBaudRate(t *testing.T) {
	assert.Equal(t, 57600, New(Config{}, zap.NewNop()).BaudRate())
	assert.Equal(t, 115200, New(Config{BaudRate: 115200}, zap.NewNop()).BaudRate())
}

func TestCaptureWaitsForFinger(t *testing.T) {
	m := newFakeModule(t)
	s := openSession(t, m)
	m.genImg = []byte{AckNoFinger, AckNoFinger, AckOK}

	scan, err := s.Capture(context.Background(), false)
	require.NoError(t, err)
	assert.Nil(t, scan.Image)
	assert.Equal(t, 3, lo.Count(m.commands, CmdGenImg))
}

func TestUnconditionalCaptureNoFinger(t *testing.T) {
	m := newFakeModule(t)
	s := openSession(t, m)
	m.genImg = []byte{AckNoFinger}

	_, err := s.Capture(context.Background(), true)
	assert.ErrorIs(t, err, driver.ErrNoFingerDetected)
}

func TestCaptureHonoursContext(t *testing.T) {
	m := newFakeModule(t)
	s := openSession(t, m)
	m.genImg = bytes.Repeat([]byte{AckNoFinger}, 1000)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Capture(ctx, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEnrollAndMatch(t *testing.T) {
	ctx := context.Background()
	m := newFakeModule(t)
	s := openSession(t, m)
	m.img2tz = []byte{AckOK, AckTooFewPoints, AckOK}

	first, err := s.ExtractEnroll(ctx, &driver.Scan{}, nil)
	require.NoError(t, err)
	require.Equal(t, devicetypes.EnrollStagePass, first.Result)
	assert.Len(t, first.Feature, 300)

	retry, err := s.ExtractEnroll(ctx, &driver.Scan{}, []driver.Feature{first.Feature})
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollRetryCenterFinger, retry.Result)

	// buffer 1 is clobbered between stages; the driver must restore it
	m.chars[1] = nil
	done, err := s.ExtractEnroll(ctx, &driver.Scan{}, []driver.Feature{first.Feature})
	require.NoError(t, err)
	require.Equal(t, devicetypes.EnrollComplete, done.Result)
	assert.Len(t, done.Template, 600)

	probe, quality, err := s.ExtractVerify(ctx, &driver.Scan{})
	require.NoError(t, err)
	require.Equal(t, devicetypes.QualityOK, quality)

	ok, err := s.Compare(ctx, probe, done.Template)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, done.Template, m.chars[2])

	m.match = AckNoMatch
	ok, err = s.Compare(ctx, probe, done.Template)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEnrollDifferentFingers(t *testing.T) {
	ctx := context.Background()
	m := newFakeModule(t)
	s := openSession(t, m)
	m.regModel = AckCombineFailed

	first, err := s.ExtractEnroll(ctx, &driver.Scan{}, nil)
	require.NoError(t, err)

	second, err := s.ExtractEnroll(ctx, &driver.Scan{}, []driver.Feature{first.Feature})
	require.NoError(t, err)
	assert.Equal(t, devicetypes.EnrollFail, second.Result)
}

func TestQualityCodes(t *testing.T) {
	tests := []struct {
		code byte
		want devicetypes.EnrollResult
	}{
		{AckDisorderly, devicetypes.EnrollRetryRemoveFinger},
		{AckTooFewPoints, devicetypes.EnrollRetryCenterFinger},
		{AckInvalidImage, devicetypes.EnrollRetryGeneral},
	}

	for _, tt := range tests {
		m := newFakeModule(t)
		s := openSession(t, m)
		m.img2tz = []byte{tt.code}

		ext, err := s.ExtractEnroll(context.Background(), &driver.Scan{}, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ext.Result)
	}
}

func TestCompareRejectsEmptyTemplate(t *testing.T) {
	s := openSession(t, newFakeModule(t))

	_, err := s.Compare(context.Background(), []byte{1}, nil)
	assert.ErrorIs(t, err, driver.ErrCorruptData)
}

func TestCaptureImage(t *testing.T) {
	s := openSession(t, newFakeModule(t))

	img, err := s.CaptureImage(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, ImageWidth, img.Width())
	assert.Equal(t, ImageHeight, img.Height())
	assert.Equal(t, byte(255), img.Pixel(0, 0))
	assert.Equal(t, byte(0), img.Pixel(1, 0))
	assert.Equal(t, Name, img.Source.Driver)
}
