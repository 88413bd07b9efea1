package drill

import (
	"math"
	"time"

	"github.com/courtiq/drill-engine/internal/geometry"
)

// Веса слияния уверенностей. Оба сенсора: fused = 0.8*min + 0.2*max
// (эквивалентно 0.5(v+a) - 0.3|v-a|) - монотонно по обоим входам,
// ограничено [0,100], согласие вознаграждается, расхождение штрафуется.
// Один сенсор молчит: fused = 0.7*c, не превышает отчитавшийся сенсор.
const (
	fusionMinWeight    = 0.8
	fusionMaxWeight    = 0.2
	fusionSingleWeight = 0.7
)

// ImpactInput - обнаруженный удар, переданный вышестоящим детектором
type ImpactInput struct {
	TsMS           int64           `json:"ts_ms"`
	WorldPosition  geometry.Point  `json:"world_position"`
	CourtPosition  geometry.Point  `json:"court_position"`
	TargetIndex    int             `json:"target_index"`
	TargetPosition *geometry.Point `json:"target_position"`

	// Уверенности в [0, 100]; отсутствующий сенсор отчитывается нулем
	VisionConfidence float64 `json:"vision_confidence"`
	AudioConfidence  float64 `json:"audio_confidence"`
}

// ValidateBounce превращает удар в неизменяемый BounceEvent.
// Некорректный вход отклоняется с ValidationError: событие
// отбрасывается целиком, движок никогда не достраивает данные.
func ValidateBounce(sessionID string, input ImpactInput, toleranceRadiusMM float64) (*BounceEvent, error) {
	if sessionID == "" {
		return nil, &ValidationError{Field: "session_id", Reason: "empty"}
	}
	if input.TsMS <= 0 {
		return nil, &ValidationError{Field: "ts_ms", Reason: "timestamp must be positive"}
	}
	if input.TargetPosition == nil {
		return nil, &ValidationError{Field: "target_position", Reason: "missing target"}
	}
	if input.TargetIndex < 0 {
		return nil, &ValidationError{Field: "target_index", Reason: "must be non-negative"}
	}
	if toleranceRadiusMM <= 0 {
		return nil, &ValidationError{Field: "tolerance_radius_mm", Reason: "must be positive"}
	}
	if err := validateConfidence("vision_confidence", input.VisionConfidence); err != nil {
		return nil, err
	}
	if err := validateConfidence("audio_confidence", input.AudioConfidence); err != nil {
		return nil, err
	}
	if !finitePoint(input.CourtPosition) || !finitePoint(input.WorldPosition) {
		return nil, &ValidationError{Field: "position", Reason: "coordinates must be finite"}
	}

	errorDistanceMM := geometry.Distance(input.CourtPosition, *input.TargetPosition) * 1000.0
	isHit := errorDistanceMM <= toleranceRadiusMM

	return &BounceEvent{
		SessionID:         sessionID,
		TsMS:              input.TsMS,
		WorldPosition:     input.WorldPosition,
		CourtPosition:     input.CourtPosition,
		TargetIndex:       input.TargetIndex,
		TargetPosition:    *input.TargetPosition,
		ErrorDistanceMM:   errorDistanceMM,
		IsHit:             isHit,
		ToleranceRadiusMM: toleranceRadiusMM,
		VisionConfidence:  input.VisionConfidence,
		AudioConfidence:   input.AudioConfidence,
		FusionConfidence:  FuseConfidence(input.VisionConfidence, input.AudioConfidence),
		CreatedAt:         time.Now(),
	}, nil
}

// FuseConfidence сливает уверенности зрения и звука в одну оценку
func FuseConfidence(vision, audio float64) float64 {
	if vision == 0 && audio == 0 {
		return 0
	}
	if audio == 0 {
		return fusionSingleWeight * vision
	}
	if vision == 0 {
		return fusionSingleWeight * audio
	}

	fused := fusionMinWeight*math.Min(vision, audio) + fusionMaxWeight*math.Max(vision, audio)

	if fused < 0 {
		return 0
	}
	if fused > 100 {
		return 100
	}
	return fused
}

func validateConfidence(field string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return &ValidationError{Field: field, Reason: "must be in [0, 100]"}
	}
	return nil
}

func finitePoint(p geometry.Point) bool {
	for _, v := range []float64{p.X, p.Y, p.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
