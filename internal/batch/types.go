package batch

import (
	"context"

	"github.com/courtiq/drill-engine/internal/drill"
)

// Batch представляет собранный батч событий отскоков одной сессии
type Batch struct {
	SessionID string             // Идентификатор сессии
	T0MS      int64              // Время первого события в батче
	T1MS      int64              // Время последнего события в батче
	Events    []drill.BounceEvent // События в батче
}

// Sink интерфейс для обработки готовых батчей
type Sink interface {
	Consume(ctx context.Context, b Batch) error
}

// currentBatch - внутренняя структура для отслеживания текущего состояния батча
type currentBatch struct {
	Batch
	lastAddedMS int64 // Время (wall clock) последнего добавления события
}

// newCurrentBatch создает новый текущий батч
func newCurrentBatch(sessionID string) *currentBatch {
	return &currentBatch{
		Batch: Batch{
			SessionID: sessionID,
			Events:    make([]drill.BounceEvent, 0),
		},
	}
}

// addEvent добавляет событие в текущий батч и обновляет временные границы
func (cb *currentBatch) addEvent(event drill.BounceEvent, nowMS int64) {
	if len(cb.Events) == 0 {
		cb.T0MS = event.TsMS
		cb.T1MS = event.TsMS
	} else {
		if event.TsMS < cb.T0MS {
			cb.T0MS = event.TsMS
		}
		if event.TsMS > cb.T1MS {
			cb.T1MS = event.TsMS
		}
	}

	cb.Events = append(cb.Events, event)
	cb.lastAddedMS = nowMS
}

// shouldFlushBySize проверяет, нужно ли сбросить батч по размеру
func (cb *currentBatch) shouldFlushBySize(maxEvents int) bool {
	return len(cb.Events) >= maxEvents
}

// shouldFlushBySpan проверяет, нужно ли сбросить батч по временному диапазону
func (cb *currentBatch) shouldFlushBySpan(maxSpanMS int64) bool {
	if len(cb.Events) == 0 {
		return false
	}
	return (cb.T1MS - cb.T0MS) >= maxSpanMS
}

// clone создает копию батча для отправки в sink
func (cb *currentBatch) clone() Batch {
	eventsCopy := make([]drill.BounceEvent, len(cb.Events))
	copy(eventsCopy, cb.Events)

	return Batch{
		SessionID: cb.SessionID,
		T0MS:      cb.T0MS,
		T1MS:      cb.T1MS,
		Events:    eventsCopy,
	}
}

// reset очищает батч для переиспользования
func (cb *currentBatch) reset() {
	cb.T0MS = 0
	cb.T1MS = 0
	cb.Events = cb.Events[:0] // Сохраняем capacity
	cb.lastAddedMS = 0
}
