// Package stream models turn delivery as a typed event sequence: status
// updates, answer token chunks, one context event and exactly one terminal
// done or error event.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/lrfluobida/agent-job-coach/pkg/coerce"
	"github.com/lrfluobida/agent-job-coach/pkg/retrieval"
)

const (
	EventStatus  = "status"
	EventToken   = "token"
	EventContext = "context"
	EventDone    = "done"
	EventError   = "error"
)

// ChunkSize is the token event payload width in runes.
const ChunkSize = 48

// Event is one typed server-sent event.
type Event struct {
	Name string
	Data map[string]interface{}
}

func Status(stage, message string) Event {
	return Event{Name: EventStatus, Data: map[string]interface{}{"stage": stage, "message": message}}
}

func Token(delta string) Event {
	return Event{Name: EventToken, Data: map[string]interface{}{"delta": delta}}
}

func Context(citations []coerce.Citation, usedContext []retrieval.Evidence, conversationID, requestID string) Event {
	if citations == nil {
		citations = []coerce.Citation{}
	}
	if usedContext == nil {
		usedContext = []retrieval.Evidence{}
	}
	return Event{Name: EventContext, Data: map[string]interface{}{
		"citations":       citations,
		"used_context":    usedContext,
		"conversation_id": conversationID,
		"request_id":      requestID,
	}}
}

func Done(conversationID, requestID string) Event {
	return Event{Name: EventDone, Data: map[string]interface{}{
		"ok":              true,
		"conversation_id": conversationID,
		"request_id":      requestID,
	}}
}

func Error(err error) Event {
	return Event{Name: EventError, Data: map[string]interface{}{"ok": false, "error": err.Error()}}
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Name == EventDone || e.Name == EventError
}

// Encode renders the event in SSE wire framing.
func (e Event) Encode() string {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		payload = []byte("{}")
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, payload)
}

// WriteTo writes the encoded event to w.
func (e Event) WriteTo(w io.Writer) error {
	_, err := io.WriteString(w, e.Encode())
	return err
}

// Chunks splits an answer into fixed-size rune chunks for token events.
func Chunks(text string) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += ChunkSize {
		end := i + ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// Emitter is a bounded producer/consumer pipe for one turn's events. The
// producer runs the turn and emits; the consumer drains and writes. The
// emitter enforces the single-terminal-event contract and drops anything
// emitted after it.
type Emitter struct {
	ch       chan Event
	ctx      context.Context
	terminal bool
}

func NewEmitter(ctx context.Context, buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 16
	}
	return &Emitter{ch: make(chan Event, buffer), ctx: ctx}
}

// Emit queues an event. Returns false once the stream is terminated or the
// consumer's context is cancelled, so producers can stop cooperatively.
func (e *Emitter) Emit(ev Event) bool {
	if e.terminal {
		return false
	}
	select {
	case <-e.ctx.Done():
		return false
	case e.ch <- ev:
		if ev.Terminal() {
			e.terminal = true
		}
		return true
	}
}

// EmitAnswer streams an answer as token chunks.
func (e *Emitter) EmitAnswer(answer string) bool {
	for _, chunk := range Chunks(answer) {
		if !e.Emit(Token(chunk)) {
			return false
		}
	}
	return true
}

// Close ends production. Call exactly once, after the terminal event.
func (e *Emitter) Close() {
	close(e.ch)
}

// Events exposes the consumer side of the pipe.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}
