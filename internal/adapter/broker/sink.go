// Package broker delivers audit entries to NATS Streaming in batches.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	stan "github.com/nats-io/stan.go"

	"github.com/example/insurance-tariff-service/internal/domain"
)

// publisher — минимальный срез stan.Conn, используемый синком.
type publisher interface {
	Publish(subject string, data []byte) error
}

// Sink — процессный источник батчей аудита поверх одного подключения
// к NATS Streaming.
type Sink struct {
	pub        publisher
	subject    string
	maxEntries int
	maxBytes   int
	log        *slog.Logger
}

func NewSink(sc stan.Conn, subject string, maxEntries, maxBytes int, log *slog.Logger) *Sink {
	return &Sink{pub: sc, subject: subject, maxEntries: maxEntries, maxBytes: maxBytes, log: log}
}

// Batch создаёт пустой батч для одной логической сессии.
func (s *Sink) Batch() domain.AuditBatch {
	return &batch{sink: s}
}

var _ domain.AuditSink = (*Sink)(nil)

type batch struct {
	sink    *Sink
	mu      sync.Mutex
	entries [][]byte
	size    int
}

// Log сериализует запись и добавляет её в батч. Если добавление превысит
// вместимость, текущий батч отправляется сразу же; ошибка доставки при этом
// логируется и не возвращается вызывающей стороне.
func (b *batch) Log(user, operation, message string) {
	entry := encodeEntry(user, operation, message)

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) > 0 &&
		(len(b.entries) >= b.sink.maxEntries || b.size+len(entry)+1 > b.sink.maxBytes) {
		if err := b.flushLocked(); err != nil {
			b.sink.log.Error("audit batch delivery failed", "err", err)
		}
	}
	b.entries = append(b.entries, entry)
	b.size += len(entry) + 1
}

// Flush отправляет накопленные записи одним сообщением независимо от
// заполненности батча. Пустой батч не отправляется.
func (b *batch) Flush(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked()
}

func (b *batch) flushLocked() error {
	if len(b.entries) == 0 {
		return nil
	}
	payload := bytes.Join(b.entries, []byte("\n"))
	b.entries = nil
	b.size = 0
	if err := b.sink.pub.Publish(b.sink.subject, payload); err != nil {
		return fmt.Errorf("publish audit batch: %w", err)
	}
	return nil
}

// Discard отбрасывает накопленные записи; используется при откате сессии,
// чтобы аудит не расходился с зафиксированным состоянием.
func (b *batch) Discard() {
	b.mu.Lock()
	b.entries = nil
	b.size = 0
	b.mu.Unlock()
}

// encodeEntry кодирует запись компактным JSON с детерминированным порядком
// ключей (json.Marshal сортирует ключи map).
func encodeEntry(user, operation, message string) []byte {
	entry, _ := json.Marshal(map[string]string{
		"user":      user,
		"operation": operation,
		"message":   message,
	})
	return entry
}
