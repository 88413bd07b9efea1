package batch

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/courtiq/drill-engine/internal/config"
	"github.com/courtiq/drill-engine/internal/drill"
)

// Batcher накапливает подтвержденные события отскоков по сессиям и
// сбрасывает их в sink по размеру, временному диапазону или возрасту
type Batcher struct {
	cfg     *config.Config
	sink    Sink
	mu      sync.RWMutex
	batches map[string]*currentBatch

	flushChan chan Batch
	stopChan  chan struct{}

	stats struct {
		mu       sync.RWMutex
		received int64
		dropped  int64
		flushed  int64
	}
}

// LogSink пишет батчи в лог; используется когда БД не сконфигурирована
type LogSink struct{}

func (ls *LogSink) Consume(ctx context.Context, b Batch) error {
	spanMS := b.T1MS - b.T0MS
	log.Printf("[BATCH] session=%s events=%d span_ms=%d t0=%d t1=%d",
		b.SessionID,
		len(b.Events),
		spanMS,
		b.T0MS,
		b.T1MS)
	return nil
}

func NewBatcher(cfg *config.Config, sink Sink) *Batcher {
	b := &Batcher{
		cfg:       cfg,
		sink:      sink,
		batches:   make(map[string]*currentBatch),
		flushChan: make(chan Batch, 100),
		stopChan:  make(chan struct{}),
	}

	go b.flushWorker()
	go b.timerFlusher()

	return b
}

// Add принимает событие, уже прошедшее валидацию в доменном слое
func (b *Batcher) Add(event drill.BounceEvent) {
	if event.SessionID == "" || event.TsMS <= 0 {
		b.incrementDropped()
		log.Printf("[WARN] Invalid bounce event dropped: session=%q ts=%d", event.SessionID, event.TsMS)
		return
	}

	nowMS := time.Now().UnixMilli()

	b.mu.Lock()
	defer b.mu.Unlock()

	batch, exists := b.batches[event.SessionID]
	if !exists {
		batch = newCurrentBatch(event.SessionID)
		b.batches[event.SessionID] = batch
	}

	batch.addEvent(event, nowMS)
	b.incrementReceived()

	if batch.shouldFlushBySize(b.cfg.BatchMaxEvents) ||
		batch.shouldFlushBySpan(b.cfg.BatchMaxSpanMS) {
		b.flushBatch(batch)
	}
}

func (b *Batcher) flushBatch(batch *currentBatch) {
	if len(batch.Events) == 0 {
		return
	}

	batchCopy := batch.clone()

	batch.reset()

	select {
	case b.flushChan <- batchCopy:
		b.incrementFlushed()
	default:
		log.Printf("[WARN] Flush channel full, batch dropped")
		b.incrementDropped()
	}
}

func (b *Batcher) flushWorker() {
	for {
		select {
		case batch := <-b.flushChan:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := b.sink.Consume(ctx, batch); err != nil {
				log.Printf("[ERROR] Failed to consume batch: %v", err)
			}
			cancel()

		case <-b.stopChan:
			return
		}
	}
}

func (b *Batcher) timerFlusher() {
	ticker := time.NewTicker(time.Duration(b.cfg.FlushIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushOldBatches()

		case <-b.stopChan:
			return
		}
	}
}

func (b *Batcher) flushOldBatches() {
	now := time.Now().UnixMilli()
	flushIntervalMS := b.cfg.FlushIntervalMS

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, batch := range b.batches {
		if len(batch.Events) > 0 &&
			(now-batch.lastAddedMS) > flushIntervalMS {
			b.flushBatch(batch)
		}
	}
}

func (b *Batcher) Stop() {
	log.Printf("[INFO] Stopping batcher...")

	b.flushAllBatches()

	for len(b.flushChan) > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)

	select {
	case <-b.stopChan:
	default:
		close(b.stopChan)
	}

	b.logStats()
}

func (b *Batcher) flushAllBatches() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, batch := range b.batches {
		if len(batch.Events) > 0 {
			b.flushBatch(batch)
		}
	}
}

// Методы для работы со статистикой
func (b *Batcher) incrementReceived() {
	b.stats.mu.Lock()
	b.stats.received++
	b.stats.mu.Unlock()
}

func (b *Batcher) incrementDropped() {
	b.stats.mu.Lock()
	b.stats.dropped++
	b.stats.mu.Unlock()
}

func (b *Batcher) incrementFlushed() {
	b.stats.mu.Lock()
	b.stats.flushed++
	b.stats.mu.Unlock()
}

func (b *Batcher) logStats() {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()

	log.Printf("[STATS] received=%d dropped=%d flushed=%d",
		b.stats.received,
		b.stats.dropped,
		b.stats.flushed)
}

func (b *Batcher) GetStats() (received, dropped, flushed int64) {
	b.stats.mu.RLock()
	defer b.stats.mu.RUnlock()

	return b.stats.received, b.stats.dropped, b.stats.flushed
}
