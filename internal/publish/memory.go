package publish

import (
	"context"
	"strconv"
	"sync"

	"github.com/cdoweather/cdoweather/internal/noaa"
)

// Message is a published message held by MemoryPublisher.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Kind returns the record kind attribute of the message.
func (m Message) Kind() RecordKind {
	return RecordKind(m.Attributes[AttributeRecordType])
}

// MemoryPublisher is an in-memory Publisher.
// This is intended for testing and dry runs.
type MemoryPublisher struct {
	mu       sync.Mutex
	messages []Message
	failWhen func(kind RecordKind, record noaa.Record) error
}

// NewMemoryPublisher creates an empty in-memory publisher.
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

// FailWhen installs a hook consulted before every publish. A non-nil return
// value fails that publish.
func (p *MemoryPublisher) FailWhen(fn func(kind RecordKind, record noaa.Record) error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.failWhen = fn
}

// Publish stores the encoded record.
func (p *MemoryPublisher) Publish(_ context.Context, kind RecordKind, record noaa.Record) (string, error) {
	if !kind.Valid() {
		return "", &PublishError{Kind: kind, Err: ErrUnknownKind}
	}

	data, err := Encode(record)
	if err != nil {
		return "", &PublishError{Kind: kind, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failWhen != nil {
		if err := p.failWhen(kind, record); err != nil {
			return "", &PublishError{Kind: kind, Err: err}
		}
	}

	id := strconv.Itoa(len(p.messages) + 1)
	p.messages = append(p.messages, Message{ID: id, Data: data, Attributes: attributes(kind)})
	return id, nil
}

// Messages returns a copy of every published message in publish order.
func (p *MemoryPublisher) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Count returns the number of messages published with the given kind.
func (p *MemoryPublisher) Count(kind RecordKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, m := range p.messages {
		if m.Kind() == kind {
			n++
		}
	}
	return n
}
