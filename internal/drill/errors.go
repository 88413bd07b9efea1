package drill

import "fmt"

// ValidationError - некорректный или выходящий за допустимые пределы
// вход события; событие отбрасывается, частичная запись не создается
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// IllegalTransitionError - нарушение машины состояний; состояние
// сессии не меняется, вызывающая сторона уведомляется
type IllegalTransitionError struct {
	From    SessionStatus
	Trigger TransitionTrigger
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition: trigger %q not permitted from status %q", e.Trigger, e.From)
}

// ConstraintViolation - нарушение пространственного инварианта
// (маркер вне зоны безопасности). Это дефект конфигурации,
// в нормальной работе не возникает.
type ConstraintViolation struct {
	Constraint string
	Detail     string
}

func (e *ConstraintViolation) Error() string {
	return fmt.Sprintf("constraint violation [%s]: %s", e.Constraint, e.Detail)
}

// SyncConflict - sync-запрос ссылается на несуществующую или
// терминальную сессию и отклоняется
type SyncConflict struct {
	SessionID string
	Reason    string
}

func (e *SyncConflict) Error() string {
	return fmt.Sprintf("sync conflict for session %s: %s", e.SessionID, e.Reason)
}
