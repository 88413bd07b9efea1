package drill

import "time"

// TransitionTrigger - причина перехода статуса сессии
type TransitionTrigger string

const (
	// Явный запрос клиента на паузу
	TriggerPause TransitionTrigger = "pause"
	// Явный запрос клиента на возобновление
	TriggerResume TransitionTrigger = "resume"
	// Явный запрос клиента на завершение
	TriggerComplete TransitionTrigger = "complete"
	// Неисправимая ошибка апстрима
	TriggerFail TransitionTrigger = "fail"
	// Автопауза по критическому инциденту безопасности
	TriggerSafetyPause TransitionTrigger = "safety_pause"
)

// transitions - таблица допустимых переходов.
// active -> paused -> active (возобновляемо), active -> completed,
// active|paused -> failed. Из терминальных статусов переходов нет.
var transitions = map[SessionStatus]map[TransitionTrigger]SessionStatus{
	StatusActive: {
		TriggerPause:       StatusPaused,
		TriggerSafetyPause: StatusPaused,
		TriggerComplete:    StatusCompleted,
		TriggerFail:        StatusFailed,
	},
	StatusPaused: {
		TriggerResume: StatusActive,
		TriggerFail:   StatusFailed,
	},
}

// Transition применяет триггер к сессии. При недопустимом переходе
// возвращается IllegalTransitionError и сессия остается неизменной.
func Transition(s *TrainingSession, trigger TransitionTrigger, reason string) error {
	next, ok := transitions[s.Status][trigger]
	if !ok {
		return &IllegalTransitionError{From: s.Status, Trigger: trigger}
	}

	s.Status = next
	s.StatusReason = reason

	if next == StatusCompleted {
		now := time.Now()
		s.CompletedAt = &now
	}

	return nil
}

// CanAcceptMetrics сообщает, принимает ли сессия еще изменения
// неаудитных полей. После терминального статуса журнальные записи
// безопасности по-прежнему принимаются, все остальное - нет.
func (s *TrainingSession) CanAcceptMetrics() bool {
	return !s.Status.Terminal()
}
