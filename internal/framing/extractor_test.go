package framing

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedAll(e *Extractor, data []byte) [][]byte {
	var frames [][]byte
	for _, b := range data {
		if frame, ok := e.Feed(b); ok {
			frames = append(frames, frame)
		}
	}
	return frames
}

func TestExtractor_SingleFrame(t *testing.T) {
	e := NewExtractor()

	frames := feedAll(e, []byte(`{"heartRate":120,"motionStatus":"WALKING"}`))

	require.Len(t, frames, 1)
	assert.Equal(t, `{"heartRate":120,"motionStatus":"WALKING"}`, string(frames[0]))
	assert.Equal(t, 0, e.Pending())
}

func TestExtractor_BackToBackFrames(t *testing.T) {
	e := NewExtractor()

	frames := e.Write([]byte(`{"steps":5}{"steps":9}`))

	require.Len(t, frames, 2)
	assert.Equal(t, `{"steps":5}`, string(frames[0]))
	assert.Equal(t, `{"steps":9}`, string(frames[1]))
}

func TestExtractor_DiscardsNoiseOutsideFrames(t *testing.T) {
	e := NewExtractor()

	frames := e.Write([]byte("AT+OK\r\n}}garbage{\"battery\":80}\n\x00\xff"))

	require.Len(t, frames, 1)
	assert.Equal(t, `{"battery":80}`, string(frames[0]))
	assert.Equal(t, 0, e.Pending())
}

func TestExtractor_NestedObjects(t *testing.T) {
	e := NewExtractor()

	frames := e.Write([]byte(`{"a":{"b":{"c":1}},"d":2}`))

	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":{"b":{"c":1}},"d":2}`, string(frames[0]))
}

func TestExtractor_FramesSplitAcrossChunks(t *testing.T) {
	e := NewExtractor()

	assert.Empty(t, e.Write([]byte(`{"heart`)))
	assert.Empty(t, e.Write([]byte(`Rate":72,"st`)))
	frames := e.Write([]byte(`eps":10}{"bat`))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"heartRate":72,"steps":10}`, string(frames[0]))

	frames = e.Write([]byte(`tery":50}`))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"battery":50}`, string(frames[0]))
}

func TestExtractor_UnterminatedFrameNeverEmits(t *testing.T) {
	e := NewExtractor()

	frames := e.Write([]byte(`{"unexpected":`))
	assert.Empty(t, frames)
	assert.Equal(t, len(`{"unexpected":`), e.Pending())

	// 未闭合帧内的 '{' 只会加深计数，不会重新开始
	frames = e.Write([]byte(`{"steps":9}`))
	assert.Empty(t, frames)

	// 深度回到 0 后，缓冲区作为一帧输出，随后的帧正常提取
	frames = e.Write([]byte(`}{"steps":10}`))
	require.Len(t, frames, 2)
	assert.Equal(t, `{"unexpected":{"steps":9}}`, string(frames[0]))
	assert.Equal(t, `{"steps":10}`, string(frames[1]))
}

func TestExtractor_QuotedBracesMisframe(t *testing.T) {
	// 已知限制：字符串中的花括号会参与计数
	e := NewExtractor()

	frames := e.Write([]byte(`{"note":"a}b","steps":1}`))

	require.Len(t, frames, 1)
	assert.Equal(t, `{"note":"a}`, string(frames[0]))
}

func TestExtractor_MaxFrameSizeRecovers(t *testing.T) {
	e := NewExtractor(WithMaxFrameSize(16))

	assert.Empty(t, e.Write([]byte(`{"unexpected":"xxxxxxxxxxxxxxxx`)))
	assert.Equal(t, 0, e.Pending())

	frames := e.Write([]byte(`{"steps":9}`))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"steps":9}`, string(frames[0]))
}

func TestExtractor_Reset(t *testing.T) {
	e := NewExtractor()
	e.Write([]byte(`{"heartRate":`))
	require.NotZero(t, e.Pending())

	e.Reset()

	assert.Equal(t, 0, e.Pending())
	frames := e.Write([]byte(`{"steps":1}`))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"steps":1}`, string(frames[0]))
}

func TestExtractor_EmittedFrameIsCopied(t *testing.T) {
	e := NewExtractor()
	frames := e.Write([]byte(`{"steps":1}`))
	require.Len(t, frames, 1)

	e.Write([]byte(`{"steps":2}`))

	assert.Equal(t, `{"steps":1}`, string(frames[0]))
}

func TestExtractor_StreamingMatchesBatch(t *testing.T) {
	alphabet := []byte(`{}{}"ab:,1 \n`)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		data := make([]byte, rng.Intn(200))
		for j := range data {
			data[j] = alphabet[rng.Intn(len(alphabet))]
		}

		streamed := feedAll(NewExtractor(), data)
		batched := Extract(data)

		assert.Equal(t, bytes.Join(batched, nil), bytes.Join(streamed, nil), "input %q", data)
		assert.Equal(t, len(batched), len(streamed), "input %q", data)
	}
}

func TestExtract_EveryFrameStartsWithBrace(t *testing.T) {
	for _, frame := range Extract([]byte(`x}{"a":1}}}{"b":{}}`)) {
		assert.Equal(t, byte('{'), frame[0])
		assert.Equal(t, byte('}'), frame[len(frame)-1])
	}
}
