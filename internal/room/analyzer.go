package room

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/courtiq/drill-engine/internal/sport"
)

// LightingCondition - качество освещения по данным сканирования
type LightingCondition string

const (
	LightingGood LightingCondition = "good"
	LightingDim  LightingCondition = "dim"
	LightingPoor LightingCondition = "poor"
)

// Штрафы к оценке безопасности; аддитивные, итог зажимается в [0, 100]
const (
	penaltyLowCeiling = 25.0
	// Полный штраф за первые fullPenaltyObstacles препятствий, дальше
	// сниженный: оценка продолжает строго убывать с каждым препятствием
	penaltyPerObstacle      = 8.0
	fullPenaltyObstacles    = 5
	penaltyPerExtraObstacle = 2.0
	penaltyNonFlat          = 20.0
	penaltyReflective       = 10.0
	penaltyPoorLighting     = 15.0
	penaltyDimLighting      = 8.0
)

// PlaneScan - обнаруженная полезная плоскость, уже вычисленная
// вышестоящим детектором; движок не выполняет CV-инференс
type PlaneScan struct {
	WidthM             float64           `json:"width_m"`
	HeightM            float64           `json:"height_m"`
	CeilingHeightM     *float64          `json:"ceiling_height_m,omitempty"`
	IsFlat             bool              `json:"is_flat"`
	ObstacleCount      int               `json:"obstacle_count"`
	Lighting           LightingCondition `json:"lighting"`
	ReflectiveSurfaces bool              `json:"reflective_surfaces"`
}

// Constraints - снимок физических ограничений помещения (RoomConstraints).
// Пересчитывается при каждом новом сканировании; идемпотентен для
// одинакового входа.
type Constraints struct {
	Sport              string            `json:"sport"`
	WidthM             float64           `json:"width_m"`
	HeightM            float64           `json:"height_m"`
	AreaM2             float64           `json:"area_m2"`
	AspectRatio        float64           `json:"aspect_ratio"`
	CeilingHeightM     *float64          `json:"ceiling_height_m,omitempty"`
	IsFlat             bool              `json:"is_flat"`
	ObstacleCount      int               `json:"obstacle_count"`
	Lighting           LightingCondition `json:"lighting"`
	ReflectiveSurfaces bool              `json:"reflective_surfaces"`
	SafetyScore        float64           `json:"safety_score"`
	IsRoomMode         bool              `json:"is_room_mode"`

	// Паттерны, допустимые в этом пространстве, от самых требовательных
	RecommendedPatterns []string `json:"recommended_patterns"`

	// Явные предупреждения об исключенных паттернах
	Warnings []string `json:"warnings,omitempty"`

	ScannedAt time.Time `json:"scanned_at"`
}

// Analyze вычисляет ограничения помещения для данного спорта.
// Детерминирован: одинаковый скан всегда дает одинаковый результат.
func Analyze(profile *sport.Profile, scan PlaneScan) (*Constraints, error) {
	if scan.WidthM <= 0 || scan.HeightM <= 0 {
		return nil, fmt.Errorf("invalid plane dimensions: %fx%f", scan.WidthM, scan.HeightM)
	}

	area := scan.WidthM * scan.HeightM
	aspect := math.Max(scan.WidthM, scan.HeightM) / math.Min(scan.WidthM, scan.HeightM)

	c := &Constraints{
		Sport:              profile.Sport,
		WidthM:             scan.WidthM,
		HeightM:            scan.HeightM,
		AreaM2:             area,
		AspectRatio:        aspect,
		CeilingHeightM:     scan.CeilingHeightM,
		IsFlat:             scan.IsFlat,
		ObstacleCount:      scan.ObstacleCount,
		Lighting:           scan.Lighting,
		ReflectiveSurfaces: scan.ReflectiveSurfaces,
		IsRoomMode:         area < profile.VenueAreaThresholdM2,
		ScannedAt:          time.Now(),
	}

	c.SafetyScore = safetyScore(profile, scan)
	c.RecommendedPatterns, c.Warnings = rankPatterns(scan, area)

	return c, nil
}

// safetyScore стартует со 100 и снимает фиксированные штрафы
func safetyScore(profile *sport.Profile, scan PlaneScan) float64 {
	score := 100.0

	if scan.CeilingHeightM != nil && *scan.CeilingHeightM < profile.MinCeilingM {
		score -= penaltyLowCeiling
	}

	obstaclePenalty := float64(scan.ObstacleCount) * penaltyPerObstacle
	if scan.ObstacleCount > fullPenaltyObstacles {
		obstaclePenalty = fullPenaltyObstacles*penaltyPerObstacle +
			float64(scan.ObstacleCount-fullPenaltyObstacles)*penaltyPerExtraObstacle
	}
	score -= obstaclePenalty

	if !scan.IsFlat {
		score -= penaltyNonFlat
	}
	if scan.ReflectiveSurfaces {
		score -= penaltyReflective
	}

	switch scan.Lighting {
	case LightingPoor:
		score -= penaltyPoorLighting
	case LightingDim:
		score -= penaltyDimLighting
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// rankPatterns отбирает допустимые паттерны и формирует предупреждения
// об исключенных; исключение всегда явное, без молчаливого пропуска
func rankPatterns(scan PlaneScan, area float64) ([]string, []string) {
	var eligible []DrillPattern
	var warnings []string

	for _, p := range Patterns() {
		if area < p.MinAreaM2 {
			warnings = append(warnings,
				fmt.Sprintf("pattern %s excluded: usable area %.1f m² below required %.1f m²", p.ID, area, p.MinAreaM2))
			continue
		}

		if p.RequiresOverhead {
			if scan.CeilingHeightM != nil && *scan.CeilingHeightM < p.MinCeilingM {
				warnings = append(warnings,
					fmt.Sprintf("pattern %s excluded: ceiling %.1f m below required %.1f m", p.ID, *scan.CeilingHeightM, p.MinCeilingM))
				continue
			}
			if scan.CeilingHeightM == nil {
				warnings = append(warnings,
					fmt.Sprintf("pattern %s allowed but ceiling height was not measured (requires %.1f m)", p.ID, p.MinCeilingM))
			}
		}

		eligible = append(eligible, p)
	}

	// Ранжируем от самых требовательных по площади; при равенстве - по id,
	// чтобы список был детерминированным
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].MinAreaM2 != eligible[j].MinAreaM2 {
			return eligible[i].MinAreaM2 > eligible[j].MinAreaM2
		}
		return eligible[i].ID < eligible[j].ID
	})

	sort.Strings(warnings)

	ids := make([]string, 0, len(eligible))
	for _, p := range eligible {
		ids = append(ids, p.ID)
	}
	return ids, warnings
}
