package batch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/courtiq/drill-engine/internal/config"
	"github.com/courtiq/drill-engine/internal/drill"
)

// TestSink для тестирования - собирает все батчи
type TestSink struct {
	mu      sync.Mutex
	batches []Batch
}

func (ts *TestSink) Consume(ctx context.Context, b Batch) error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.batches = append(ts.batches, b)
	return nil
}

func (ts *TestSink) GetBatches() []Batch {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	result := make([]Batch, len(ts.batches))
	copy(result, ts.batches)
	return result
}

func bounce(sessionID string, tsMS int64) drill.BounceEvent {
	return drill.BounceEvent{
		SessionID: sessionID,
		TsMS:      tsMS,
		IsHit:     true,
	}
}

func TestBatcher_FlushBySize(t *testing.T) {
	cfg := &config.Config{
		BatchMaxEvents:  3,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 500,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	// Добавляем 5 событий подряд - флаш после третьего
	for _, ts := range []int64{1000, 1100, 1200, 1300, 1400} {
		batcher.Add(bounce("session1", ts))
	}

	// Даем время для обработки
	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Errorf("Expected 1 flushed batch, got %d", len(batches))
	}

	if len(batches) > 0 && len(batches[0].Events) != 3 {
		t.Errorf("Expected 3 events in first batch, got %d", len(batches[0].Events))
	}
}

func TestBatcher_FlushBySpan(t *testing.T) {
	cfg := &config.Config{
		BatchMaxEvents:  100,
		BatchMaxSpanMS:  1000, // 1 секунда
		FlushIntervalMS: 500,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	// Третье событие растягивает диапазон до 1100мс - флаш всего батча
	for _, ts := range []int64{1000, 1500, 2100} {
		batcher.Add(bounce("session1", ts))
	}

	// Даем время для обработки
	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected 1 flushed batch, got %d", len(batches))
	}

	batch := batches[0]
	if len(batch.Events) != 3 {
		t.Errorf("Expected 3 events in flushed batch, got %d", len(batch.Events))
	}
	span := batch.T1MS - batch.T0MS
	if span != 1100 {
		t.Errorf("Expected span of 1100ms in flushed batch, got %dms", span)
	}
}

func TestBatcher_InvalidEventDropped(t *testing.T) {
	cfg := &config.Config{
		BatchMaxEvents:  100,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 500,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	batcher.Add(bounce("session1", 1000))
	batcher.Add(bounce("", 2000))         // Пустая сессия
	batcher.Add(bounce("session1", 0))    // Нулевая метка времени
	batcher.Add(bounce("session1", 3000))

	received, dropped, _ := batcher.GetStats()
	if received != 2 {
		t.Errorf("Expected 2 received events, got %d", received)
	}
	if dropped != 2 {
		t.Errorf("Expected 2 dropped events, got %d", dropped)
	}
}

func TestBatcher_TimerFlush(t *testing.T) {
	cfg := &config.Config{
		BatchMaxEvents:  100,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 100, // Очень частая проверка
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	batcher.Add(bounce("session1", 1000))

	// Ждем, пока таймер сработает
	time.Sleep(300 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Errorf("Expected 1 batch flushed by timer, got %d", len(batches))
	}

	if len(batches) > 0 && len(batches[0].Events) != 1 {
		t.Errorf("Expected 1 event in batch, got %d", len(batches[0].Events))
	}
}

func TestBatcher_MultipleSessions(t *testing.T) {
	cfg := &config.Config{
		BatchMaxEvents:  2,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 500,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)
	defer batcher.Stop()

	// События разных сессий копятся в разных батчах
	batcher.Add(bounce("session1", 1000))
	batcher.Add(bounce("session2", 1100))
	batcher.Add(bounce("session1", 1200)) // Флаш session1
	batcher.Add(bounce("session2", 1300)) // Флаш session2

	// Даем время для обработки
	time.Sleep(100 * time.Millisecond)

	batches := sink.GetBatches()
	if len(batches) != 2 {
		t.Fatalf("Expected 2 batches (one per session), got %d", len(batches))
	}
	for _, b := range batches {
		if len(b.Events) != 2 {
			t.Errorf("Expected 2 events in batch for %s, got %d", b.SessionID, len(b.Events))
		}
	}
}

func TestBatcher_StopFlushesRemainder(t *testing.T) {
	cfg := &config.Config{
		BatchMaxEvents:  100,
		BatchMaxSpanMS:  30000,
		FlushIntervalMS: 10000,
	}

	sink := &TestSink{}
	batcher := NewBatcher(cfg, sink)

	batcher.Add(bounce("session1", 1000))
	batcher.Add(bounce("session1", 1100))

	batcher.Stop()

	batches := sink.GetBatches()
	if len(batches) != 1 {
		t.Fatalf("Expected remainder flushed on stop, got %d batches", len(batches))
	}
	if len(batches[0].Events) != 2 {
		t.Errorf("Expected 2 events in final batch, got %d", len(batches[0].Events))
	}
}
