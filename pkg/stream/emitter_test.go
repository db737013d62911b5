package stream

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks(t *testing.T) {
	text := strings.Repeat("答", 100)
	chunks := Chunks(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, 48, len([]rune(chunks[0])))
	assert.Equal(t, 4, len([]rune(chunks[2])))
	assert.Equal(t, text, strings.Join(chunks, ""))

	assert.Empty(t, Chunks(""))
}

func TestEncodeFraming(t *testing.T) {
	ev := Status("retrieve", "检索中...")
	encoded := ev.Encode()
	assert.True(t, strings.HasPrefix(encoded, "event: status\ndata: "))
	assert.True(t, strings.HasSuffix(encoded, "\n\n"))
	assert.Contains(t, encoded, "检索中...")
}

func TestEmitterSingleTerminalEvent(t *testing.T) {
	em := NewEmitter(context.Background(), 8)
	assert.True(t, em.Emit(Status("generate", "生成回答...")))
	assert.True(t, em.Emit(Done("conv_1", "req_1")))
	// Nothing may follow the terminal event.
	assert.False(t, em.Emit(Token("late")))
	assert.False(t, em.Emit(Error(assert.AnError)))
	em.Close()

	var names []string
	for ev := range em.Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{EventStatus, EventDone}, names)
}

func TestEmitterCooperativeCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	em := NewEmitter(ctx, 1)
	require.True(t, em.Emit(Token("a")))

	// Buffer is full and the consumer is gone; a cancelled context must
	// unblock the producer instead of deadlocking it.
	cancel()
	assert.False(t, em.Emit(Token("b")))
	em.Close()
}

func TestEmitAnswerStreamsAllChunks(t *testing.T) {
	em := NewEmitter(context.Background(), 64)
	answer := strings.Repeat("x", ChunkSize*2+5)
	require.True(t, em.EmitAnswer(answer))
	require.True(t, em.Emit(Done("c", "r")))
	em.Close()

	var rebuilt strings.Builder
	for ev := range em.Events() {
		if ev.Name == EventToken {
			rebuilt.WriteString(ev.Data["delta"].(string))
		}
	}
	assert.Equal(t, answer, rebuilt.String())
}
