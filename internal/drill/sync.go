package drill

import (
	"time"

	"github.com/courtiq/drill-engine/internal/geometry"
)

// SyncPayload - отчет одной платформы о качестве той же логической
// сессии. Отсутствующие точечные поля (nil) не перезаписывают текущие
// значения; присутствующие применяются по правилу last-writer-wins.
type SyncPayload struct {
	Platform PlatformKind     `json:"platform"`
	Context  *PlatformContext `json:"context,omitempty"`

	// Монотонно улучшающиеся метрики: сливаются через max
	AverageFPS      *float64 `json:"average_fps,omitempty"`
	TrackingQuality *float64 `json:"tracking_quality,omitempty"`

	// Точечные поля текущих физических условий: last-writer-wins
	SafetyScore        *float64        `json:"safety_score,omitempty"`
	RoomCenter         *geometry.Point `json:"room_center,omitempty"`
	ScaleFactor        *float64        `json:"scale_factor,omitempty"`
	ObstacleCount      *int            `json:"obstacle_count,omitempty"`
	LightingConditions *string         `json:"lighting_conditions,omitempty"`
	ReflectiveSurfaces *bool           `json:"reflective_surfaces,omitempty"`
}

// Validate проверяет sync-отчет до слияния
func (p *SyncPayload) Validate() error {
	if p.Platform != KindWebMediapipe && p.Platform != KindFlutterUnity {
		return &ValidationError{Field: "platform", Reason: "unknown platform kind"}
	}
	if p.AverageFPS != nil && *p.AverageFPS < 0 {
		return &ValidationError{Field: "average_fps", Reason: "must be non-negative"}
	}
	if p.TrackingQuality != nil && (*p.TrackingQuality < 0 || *p.TrackingQuality > 100) {
		return &ValidationError{Field: "tracking_quality", Reason: "must be in [0, 100]"}
	}
	if p.SafetyScore != nil && (*p.SafetyScore < 0 || *p.SafetyScore > 100) {
		return &ValidationError{Field: "safety_score", Reason: "must be in [0, 100]"}
	}
	if p.ObstacleCount != nil && *p.ObstacleCount < 0 {
		return &ValidationError{Field: "obstacle_count", Reason: "must be non-negative"}
	}
	if p.Context != nil {
		if p.Context.Kind != p.Platform {
			return &ValidationError{Field: "context", Reason: "context kind does not match reporting platform"}
		}
		return p.Context.Validate()
	}
	return nil
}

// MergeSync применяет отчет платформы к каноническому снимку сессии.
// Идемпотентно: повторное применение того же отчета дает ту же запись,
// что и однократное (безопасный retry по сети). LastSyncAt - служебная
// отметка времени слияния, а не часть сливаемых данных: при retry она
// сдвигается, остальные поля не меняются.
func MergeSync(s *TrainingSession, payload SyncPayload, now time.Time) error {
	if !s.CanAcceptMetrics() {
		return &SyncConflict{SessionID: s.ID, Reason: "session is in terminal status " + string(s.Status)}
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	if s.Quality == nil {
		s.Quality = &QualityMetrics{}
	}
	q := s.Quality

	// Качество пиков только растет
	if payload.AverageFPS != nil && *payload.AverageFPS > q.AverageFPS {
		q.AverageFPS = *payload.AverageFPS
	}
	if payload.TrackingQuality != nil && *payload.TrackingQuality > q.TrackingQuality {
		q.TrackingQuality = *payload.TrackingQuality
	}

	// Текущие физические условия: перезапись последним отчетом
	if payload.SafetyScore != nil {
		q.SafetyScore = *payload.SafetyScore
	}
	if payload.RoomCenter != nil {
		center := *payload.RoomCenter
		q.RoomCenter = &center
	}
	if payload.ScaleFactor != nil {
		q.ScaleFactor = *payload.ScaleFactor
	}
	if payload.ObstacleCount != nil {
		q.ObstacleCount = *payload.ObstacleCount
	}
	if payload.LightingConditions != nil {
		q.LightingConditions = *payload.LightingConditions
	}
	if payload.ReflectiveSurfaces != nil {
		q.ReflectiveSurfaces = *payload.ReflectiveSurfaces
	}

	q.ReportedBy = payload.Platform
	q.LastSyncAt = now

	if payload.Context != nil {
		ctx := *payload.Context
		s.Context = &ctx
	}

	return nil
}
