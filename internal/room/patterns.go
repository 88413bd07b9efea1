package room

import "fmt"

// LayoutKind определяет функцию раскладки маркеров паттерна
type LayoutKind string

const (
	LayoutBox        LayoutKind = "box"
	LayoutLadder     LayoutKind = "ladder"
	LayoutLemniscate LayoutKind = "lemniscate"
	LayoutLine       LayoutKind = "line"
)

// DrillPattern описывает паттерн дрилла и его пространственные требования
type DrillPattern struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Layout      LayoutKind `json:"layout"`
	MarkerCount int        `json:"marker_count"`

	// Минимальная полезная площадь, м²
	MinAreaM2 float64 `json:"min_area_m2"`

	// Паттерны с движением над головой требуют запаса по потолку
	RequiresOverhead bool    `json:"requires_overhead"`
	MinCeilingM      float64 `json:"min_ceiling_m,omitempty"`
}

// patternTable - фиксированный набор паттернов; порядок не важен,
// ранжирование выполняет анализатор помещения
var patternTable = map[string]DrillPattern{
	"dribble_box": {
		ID:          "dribble_box",
		Name:        "Dribble Box",
		Layout:      LayoutBox,
		MarkerCount: 8,
		MinAreaM2:   4.0,
	},
	"micro_ladder": {
		ID:          "micro_ladder",
		Name:        "Micro Ladder",
		Layout:      LayoutLadder,
		MarkerCount: 6,
		MinAreaM2:   2.4,
	},
	"figure_eight": {
		ID:          "figure_eight",
		Name:        "Figure Eight",
		Layout:      LayoutLemniscate,
		MarkerCount: 8,
		MinAreaM2:   5.0,
	},
	"wall_toss": {
		ID:               "wall_toss",
		Name:             "Wall Toss",
		Layout:           LayoutLine,
		MarkerCount:      4,
		MinAreaM2:        3.5,
		RequiresOverhead: true,
		MinCeilingM:      2.8,
	},
	"overhead_circuit": {
		ID:               "overhead_circuit",
		Name:             "Overhead Circuit",
		Layout:           LayoutBox,
		MarkerCount:      4,
		MinAreaM2:        6.0,
		RequiresOverhead: true,
		MinCeilingM:      2.8,
	},
}

// PatternFor возвращает паттерн по идентификатору
func PatternFor(patternID string) (DrillPattern, error) {
	p, ok := patternTable[patternID]
	if !ok {
		return DrillPattern{}, fmt.Errorf("unknown drill pattern: %s", patternID)
	}
	return p, nil
}

// Patterns возвращает все известные паттерны
func Patterns() []DrillPattern {
	out := make([]DrillPattern, 0, len(patternTable))
	for _, p := range patternTable {
		out = append(out, p)
	}
	return out
}
