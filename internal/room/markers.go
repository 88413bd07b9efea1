package room

import (
	"fmt"
	"math"

	"github.com/courtiq/drill-engine/internal/drill"
	"github.com/courtiq/drill-engine/internal/geometry"
)

// DefaultSafetyMarginM - отступ маркеров от границы полезной зоны
const DefaultSafetyMarginM = 0.3

// containmentEpsM поглощает ошибку округления при раскладке:
// margin+innerW и width-margin - одно и то же число, вычисленное
// двумя путями, и в float64 они могут разойтись на пол-ULP
const containmentEpsM = 1e-9

// UsableArea - размеры полезной зоны для генерации маркеров, метры
type UsableArea struct {
	WidthM  float64 `json:"width_m"`
	HeightM float64 `json:"height_m"`
}

// Marker - целевой маркер дрилла в координатах корта
type Marker struct {
	Index             int            `json:"index"`
	Position          geometry.Point `json:"position"`
	ToleranceRadiusMM float64        `json:"tolerance_radius_mm"`
}

// MarkerSet - упорядоченная последовательность маркеров паттерна
type MarkerSet struct {
	PatternID     string   `json:"pattern_id"`
	SafetyMarginM float64  `json:"safety_margin_m"`
	Markers       []Marker `json:"markers"`
}

// GenerateMarkers раскладывает маркеры паттерна внутри полезной зоны
// с учетом отступа безопасности. Раскладка детерминирована.
func GenerateMarkers(patternID string, area UsableArea, toleranceRadiusMM float64) (*MarkerSet, error) {
	pattern, err := PatternFor(patternID)
	if err != nil {
		return nil, err
	}

	if area.WidthM*area.HeightM < pattern.MinAreaM2 {
		return nil, fmt.Errorf("usable area %.1f m² below pattern %s minimum %.1f m²",
			area.WidthM*area.HeightM, pattern.ID, pattern.MinAreaM2)
	}

	margin := DefaultSafetyMarginM
	innerW := area.WidthM - 2*margin
	innerH := area.HeightM - 2*margin
	if innerW <= 0 || innerH <= 0 {
		return nil, fmt.Errorf("usable area %.1fx%.1f m too small for safety margin %.1f m",
			area.WidthM, area.HeightM, margin)
	}

	var positions []geometry.Point
	switch pattern.Layout {
	case LayoutBox:
		positions = layoutBox(pattern.MarkerCount, margin, innerW, innerH)
	case LayoutLadder:
		positions = layoutLadder(pattern.MarkerCount, margin, area, innerW, innerH)
	case LayoutLemniscate:
		positions = layoutLemniscate(pattern.MarkerCount, margin, innerW, innerH)
	case LayoutLine:
		positions = layoutLine(pattern.MarkerCount, margin, innerW, innerH)
	default:
		return nil, fmt.Errorf("pattern %s has unknown layout %q", pattern.ID, pattern.Layout)
	}

	set := &MarkerSet{
		PatternID:     pattern.ID,
		SafetyMarginM: margin,
		Markers:       make([]Marker, 0, len(positions)),
	}
	for i, pos := range positions {
		set.Markers = append(set.Markers, Marker{
			Index:             i,
			Position:          pos,
			ToleranceRadiusMM: toleranceRadiusMM,
		})
	}

	// Выход маркера за зону минус отступ - дефект раскладки,
	// а не состояние времени выполнения
	if err := set.checkContainment(area); err != nil {
		return nil, err
	}

	return set, nil
}

// checkContainment проверяет инвариант: каждый маркер строго внутри
// полезной зоны минус отступ безопасности
func (s *MarkerSet) checkContainment(area UsableArea) error {
	lo := s.SafetyMarginM - containmentEpsM
	hiX := area.WidthM - s.SafetyMarginM + containmentEpsM
	hiY := area.HeightM - s.SafetyMarginM + containmentEpsM
	for _, m := range s.Markers {
		if m.Position.X < lo || m.Position.X > hiX ||
			m.Position.Y < lo || m.Position.Y > hiY {
			return &drill.ConstraintViolation{
				Constraint: "marker_containment",
				Detail: fmt.Sprintf("marker %d of pattern %s at (%.3f, %.3f) outside usable area %.1fx%.1f minus margin %.1f",
					m.Index, s.PatternID, m.Position.X, m.Position.Y, area.WidthM, area.HeightM, s.SafetyMarginM),
			}
		}
	}
	return nil
}

// layoutBox вписывает маркеры по периметру прямоугольника с отступом:
// углы, затем середины сторон
func layoutBox(n int, margin, innerW, innerH float64) []geometry.Point {
	x0, y0 := margin, margin
	x1, y1 := margin+innerW, margin+innerH
	xm, ym := margin+innerW/2, margin+innerH/2

	perimeter := []geometry.Point{
		{X: x0, Y: y0},
		{X: x1, Y: y0},
		{X: x1, Y: y1},
		{X: x0, Y: y1},
		{X: xm, Y: y0},
		{X: x1, Y: ym},
		{X: xm, Y: y1},
		{X: x0, Y: ym},
	}

	if n > len(perimeter) {
		n = len(perimeter)
	}
	return perimeter[:n]
}

// layoutLadder раскладывает маркеры равномерно вдоль длинной оси
// по центральной линии зоны
func layoutLadder(n int, margin float64, area UsableArea, innerW, innerH float64) []geometry.Point {
	points := make([]geometry.Point, 0, n)

	if area.WidthM >= area.HeightM {
		yc := margin + innerH/2
		for i := 0; i < n; i++ {
			x := margin + innerW*float64(i)/float64(n-1)
			points = append(points, geometry.Point{X: x, Y: yc})
		}
	} else {
		xc := margin + innerW/2
		for i := 0; i < n; i++ {
			y := margin + innerH*float64(i)/float64(n-1)
			points = append(points, geometry.Point{X: xc, Y: y})
		}
	}

	return points
}

// layoutLemniscate сэмплирует восьмерку Жероно, растянутую на зону
func layoutLemniscate(n int, margin, innerW, innerH float64) []geometry.Point {
	points := make([]geometry.Point, 0, n)

	cx := margin + innerW/2
	cy := margin + innerH/2
	ax := innerW / 2
	ay := innerH / 2

	for i := 0; i < n; i++ {
		t := 2 * math.Pi * float64(i) / float64(n)
		// x = a*sin(t), y = b*sin(t)*cos(t): кривая лежит в [-a,a]x[-b/2,b/2]
		points = append(points, geometry.Point{
			X: cx + ax*math.Sin(t),
			Y: cy + ay*math.Sin(t)*math.Cos(t),
		})
	}

	return points
}

// layoutLine раскладывает маркеры вдоль одной стороны зоны
// (паттерны у стены: броски, отскоки от стены)
func layoutLine(n int, margin, innerW, innerH float64) []geometry.Point {
	points := make([]geometry.Point, 0, n)
	y := margin

	if n == 1 {
		return []geometry.Point{{X: margin + innerW/2, Y: y}}
	}

	for i := 0; i < n; i++ {
		x := margin + innerW*float64(i)/float64(n-1)
		points = append(points, geometry.Point{X: x, Y: y})
	}

	return points
}

// MapToCanvas переводит позицию маркера в пиксельные координаты.
// Чисто презентационная операция; инварианты раскладки от нее не зависят.
func MapToCanvas(m Marker, area UsableArea, canvasW, canvasH float64) (float64, float64) {
	return m.Position.X / area.WidthM * canvasW, m.Position.Y / area.HeightM * canvasH
}
