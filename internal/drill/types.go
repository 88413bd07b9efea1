package drill

import (
	"time"

	"github.com/courtiq/drill-engine/internal/geometry"
	"github.com/courtiq/drill-engine/internal/sport"
)

// SessionStatus представляет статус тренировочной сессии
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// Terminal сообщает, является ли статус терминальным
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Platform представляет клиентскую платформу
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

// Valid проверяет, что платформа известна
func (p Platform) Valid() bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return true
	}
	return false
}

// Scores - три взвешенные подоценки и итоговая оценка.
// TotalScore всегда пересчитывается из подоценок, напрямую не пишется.
type Scores struct {
	Precision float64 `json:"precision"`
	Pace      float64 `json:"pace"`
	Streak    float64 `json:"streak"`
	Total     float64 `json:"total"`
}

// QualityMetrics - канонические метрики качества, слитые из отчетов
// обеих платформ
type QualityMetrics struct {
	// Монотонно улучшающиеся: сливаются через max
	AverageFPS      float64 `json:"average_fps"`
	TrackingQuality float64 `json:"tracking_quality"`

	// Точечные поля текущих физических условий: last-writer-wins
	SafetyScore        float64         `json:"safety_score"`
	RoomCenter         *geometry.Point `json:"room_center,omitempty"`
	ScaleFactor        float64         `json:"scale_factor,omitempty"`
	ObstacleCount      int             `json:"obstacle_count"`
	LightingConditions string          `json:"lighting_conditions,omitempty"`
	ReflectiveSurfaces bool            `json:"reflective_surfaces"`

	// Последняя отчитавшаяся платформа и служебная отметка времени
	// слияния; LastSyncAt не участвует в идемпотентности merge
	ReportedBy PlatformKind `json:"reported_by,omitempty"`
	LastSyncAt time.Time    `json:"last_sync_at"`
}

// PlatformKind - тег варианта платформенного контекста
type PlatformKind string

const (
	KindWebMediapipe PlatformKind = "web_mediapipe"
	KindFlutterUnity PlatformKind = "flutter_unity"
)

// WebMediapipeContext - контекст web-клиента с камерным pose-трекингом
type WebMediapipeContext struct {
	ModelComplexity int     `json:"model_complexity"`
	CameraFacing    string  `json:"camera_facing,omitempty"`
	ViewportWidth   int     `json:"viewport_width"`
	ViewportHeight  int     `json:"viewport_height"`
	MinPoseScore    float64 `json:"min_pose_score,omitempty"`
}

// Validate проверяет схему варианта web_mediapipe
func (c *WebMediapipeContext) Validate() error {
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return &ValidationError{Field: "viewport", Reason: "dimensions must be positive"}
	}
	if c.ModelComplexity < 0 || c.ModelComplexity > 2 {
		return &ValidationError{Field: "model_complexity", Reason: "must be 0, 1 or 2"}
	}
	return nil
}

// FlutterUnityContext - контекст нативного AR-клиента
type FlutterUnityContext struct {
	AREngine      string  `json:"ar_engine"` // "arcore" | "arkit"
	PlaneID       string  `json:"plane_id,omitempty"`
	AnchorCount   int     `json:"anchor_count"`
	LightEstimate float64 `json:"light_estimate,omitempty"`
}

// Validate проверяет схему варианта flutter_unity
func (c *FlutterUnityContext) Validate() error {
	if c.AREngine != "arcore" && c.AREngine != "arkit" {
		return &ValidationError{Field: "ar_engine", Reason: "must be arcore or arkit"}
	}
	if c.AnchorCount < 0 {
		return &ValidationError{Field: "anchor_count", Reason: "must be non-negative"}
	}
	return nil
}

// PlatformContext - размеченное объединение платформенного контекста.
// Ровно один вариант должен быть заполнен в соответствии с Kind.
type PlatformContext struct {
	Kind PlatformKind         `json:"kind"`
	Web  *WebMediapipeContext `json:"web,omitempty"`
	AR   *FlutterUnityContext `json:"ar,omitempty"`
}

// Validate проверяет, что заполнен ровно вариант, указанный тегом
func (c *PlatformContext) Validate() error {
	switch c.Kind {
	case KindWebMediapipe:
		if c.Web == nil || c.AR != nil {
			return &ValidationError{Field: "kind", Reason: "web_mediapipe context requires exactly the web variant"}
		}
		return c.Web.Validate()
	case KindFlutterUnity:
		if c.AR == nil || c.Web != nil {
			return &ValidationError{Field: "kind", Reason: "flutter_unity context requires exactly the ar variant"}
		}
		return c.AR.Validate()
	default:
		return &ValidationError{Field: "kind", Reason: "unknown platform kind"}
	}
}

// TrainingSession представляет тренировочную сессию (канонический снимок).
// Операции движка принимают снимок и возвращают обновленный снимок;
// долговечность обеспечивает внешний слой хранения.
type TrainingSession struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Sport          string           `json:"sport"`
	DrillPatternID string           `json:"drill_pattern_id"`
	Difficulty     sport.Difficulty `json:"difficulty"`
	Platform       Platform         `json:"platform"`
	Status         SessionStatus    `json:"status"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMs  int64      `json:"duration_ms"`

	TotalBounces      int     `json:"total_bounces"`
	TotalHits         int     `json:"total_hits"`
	Accuracy          float64 `json:"accuracy"`
	AvgReactionTimeMs float64 `json:"avg_reaction_time_ms"`

	Scores  Scores          `json:"scores"`
	Quality *QualityMetrics `json:"quality,omitempty"`

	// Платформенный контекст последнего отчитавшегося клиента
	Context *PlatformContext `json:"context,omitempty"`

	// Причина последнего перехода (автопауза, отказ апстрима)
	StatusReason string `json:"status_reason,omitempty"`
}

// BounceEvent - неизменяемая запись одного физического контакта.
// Создается ровно один раз; append-only журнал аудита сессии.
type BounceEvent struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	TsMS      int64  `json:"ts_ms"`

	WorldPosition geometry.Point `json:"world_position"`
	CourtPosition geometry.Point `json:"court_position"`

	TargetIndex    int            `json:"target_index"`
	TargetPosition geometry.Point `json:"target_position"`

	ErrorDistanceMM   float64 `json:"error_distance_mm"`
	IsHit             bool    `json:"is_hit"`
	ToleranceRadiusMM float64 `json:"tolerance_radius_mm"`

	// Уверенности в [0, 100]
	VisionConfidence float64 `json:"vision_confidence"`
	AudioConfidence  float64 `json:"audio_confidence"`
	FusionConfidence float64 `json:"fusion_confidence"`

	CreatedAt time.Time `json:"created_at"`
}

// IncidentType представляет тип инцидента безопасности
type IncidentType string

const (
	IncidentBoundaryViolation IncidentType = "boundary_violation"
	IncidentCollisionRisk     IncidentType = "collision_risk"
	IncidentPoseUnsafe        IncidentType = "pose_unsafe"
	IncidentTrackingLost      IncidentType = "tracking_lost"
)

// IncidentSeverity представляет серьезность инцидента
type IncidentSeverity string

const (
	SeverityInfo     IncidentSeverity = "info"
	SeverityWarning  IncidentSeverity = "warning"
	SeverityCritical IncidentSeverity = "critical"
)

// SafetyIncident - запись журнала безопасности (append-only)
type SafetyIncident struct {
	ID        int64            `json:"id"`
	SessionID string           `json:"session_id"`
	Type      IncidentType     `json:"type"`
	Severity  IncidentSeverity `json:"severity"`
	Message   string           `json:"message"`

	UserPosition *geometry.Point `json:"user_position,omitempty"`

	// Автоматическая реакция движка ("pause"), если была
	AutomaticResponse string `json:"automatic_response,omitempty"`

	// Критический инцидент обязан поставить сессию на паузу ровно один раз
	SessionPaused bool `json:"session_paused"`

	CreatedAt time.Time `json:"created_at"`
}
