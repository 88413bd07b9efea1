// Package safety - монитор безопасности позы пользователя.
//
// Domain Layer: чистая оценка снимков позы относительно ограничений
// помещения. Монитор только читает Constraints и никогда их не меняет;
// решение о паузе сессии принимает вышестоящий слой.
package safety

import (
	"fmt"
	"math"
	"time"

	"github.com/courtiq/drill-engine/internal/drill"
	"github.com/courtiq/drill-engine/internal/geometry"
	"github.com/courtiq/drill-engine/internal/room"
)

// Пороги оценки позы
const (
	// Минимальная видимость, при которой ориентир считается отслеживаемым
	visibilityThreshold = 0.6

	// Минимальное число видимых ориентиров для уверенного трекинга
	minVisibleLandmarks = 4

	// Дистанции до границы зоны
	boundaryWarnM     = 0.5
	boundaryCriticalM = 0.2

	// Скорость опасна только вблизи границы
	velocityWarnMS      = 3.0
	velocityWarnZoneM   = 1.0
	velocityDangerZoneM = 0.5
)

// Landmark - один ориентир скелета с достоверностью трекинга
type Landmark struct {
	Name       string         `json:"name"`
	Position   geometry.Point `json:"position"`
	Visibility float64        `json:"visibility"`
}

// PoseSnapshot - снимок позы в мировых координатах на момент времени
type PoseSnapshot struct {
	TsMS      int64      `json:"ts_ms"`
	Landmarks []Landmark `json:"landmarks"`
}

// Assessment - результат оценки одного снимка
type Assessment struct {
	Safe bool `json:"safe"`

	// Инциденты в порядке обнаружения; критические требуют паузы
	Incidents []drill.SafetyIncident `json:"incidents,omitempty"`

	// Дистанция до границы зоны ближайшего видимого ориентира,
	// если поза отслеживается
	DistanceToBoundaryM *float64 `json:"distance_to_boundary_m,omitempty"`

	// Скорость центра тела между снимками, м/с
	VelocityMS *float64 `json:"velocity_ms,omitempty"`
}

// Critical сообщает, требует ли оценка немедленной остановки дрилла
func (a *Assessment) Critical() bool {
	for _, inc := range a.Incidents {
		if inc.Severity == drill.SeverityCritical {
			return true
		}
	}
	return false
}

// Monitor оценивает снимки позы относительно ограничений помещения
type Monitor struct {
	constraints *room.Constraints
}

// NewMonitor создает монитор поверх снимка ограничений.
// Ограничения только читаются; монитор не владеет ими.
func NewMonitor(constraints *room.Constraints) (*Monitor, error) {
	if constraints == nil {
		return nil, fmt.Errorf("safety monitor requires room constraints")
	}
	if constraints.WidthM <= 0 || constraints.HeightM <= 0 {
		return nil, fmt.Errorf("invalid room dimensions %fx%f", constraints.WidthM, constraints.HeightM)
	}
	return &Monitor{constraints: constraints}, nil
}

// Evaluate оценивает снимок позы. previous может быть nil - тогда
// проверка скорости пропускается. Оценка чистая: никаких записей,
// инциденты возвращаются вызывающему.
func (m *Monitor) Evaluate(sessionID string, snapshot PoseSnapshot, previous *PoseSnapshot, now time.Time) *Assessment {
	a := &Assessment{Safe: true}

	visible := visibleLandmarks(snapshot)
	if len(visible) < minVisibleLandmarks {
		a.Safe = false
		a.Incidents = append(a.Incidents, drill.SafetyIncident{
			SessionID: sessionID,
			Type:      drill.IncidentTrackingLost,
			Severity:  drill.SeverityWarning,
			Message: fmt.Sprintf("pose tracking degraded: %d of %d landmarks visible (need %d)",
				len(visible), len(snapshot.Landmarks), minVisibleLandmarks),
			CreatedAt: now,
		})
		return a
	}

	// Граница проверяется по каждому видимому ориентиру: вытянутая к
	// границе рука опасна и при центре тела посреди зоны. В оценку идет
	// ближайший нарушитель.
	center := bodyCenter(visible)
	nearest, boundaryDist := m.nearestToBoundary(visible)
	a.DistanceToBoundaryM = &boundaryDist
	nearestPos := nearest.Position

	switch {
	case boundaryDist < boundaryCriticalM:
		a.Safe = false
		a.Incidents = append(a.Incidents, drill.SafetyIncident{
			SessionID:    sessionID,
			Type:         drill.IncidentBoundaryViolation,
			Severity:     drill.SeverityCritical,
			Message:      fmt.Sprintf("%s %.2f m from zone boundary (critical below %.2f m)", landmarkLabel(nearest), boundaryDist, boundaryCriticalM),
			UserPosition: &nearestPos,
			CreatedAt:    now,
		})
	case boundaryDist < boundaryWarnM:
		a.Safe = false
		a.Incidents = append(a.Incidents, drill.SafetyIncident{
			SessionID:    sessionID,
			Type:         drill.IncidentBoundaryViolation,
			Severity:     drill.SeverityWarning,
			Message:      fmt.Sprintf("%s %.2f m from zone boundary (warn below %.2f m)", landmarkLabel(nearest), boundaryDist, boundaryWarnM),
			UserPosition: &nearestPos,
			CreatedAt:    now,
		})
	}

	if previous != nil {
		if v, ok := m.velocity(snapshot, *previous); ok {
			a.VelocityMS = &v

			if v > velocityWarnMS {
				switch {
				case boundaryDist < velocityDangerZoneM:
					a.Safe = false
					a.Incidents = append(a.Incidents, drill.SafetyIncident{
						SessionID:    sessionID,
						Type:         drill.IncidentCollisionRisk,
						Severity:     drill.SeverityCritical,
						Message:      fmt.Sprintf("moving %.1f m/s within %.2f m of boundary", v, boundaryDist),
						UserPosition: &center,
						CreatedAt:    now,
					})
				case boundaryDist < velocityWarnZoneM:
					a.Safe = false
					a.Incidents = append(a.Incidents, drill.SafetyIncident{
						SessionID:    sessionID,
						Type:         drill.IncidentCollisionRisk,
						Severity:     drill.SeverityWarning,
						Message:      fmt.Sprintf("moving %.1f m/s within %.2f m of boundary", v, boundaryDist),
						UserPosition: &center,
						CreatedAt:    now,
					})
				}
			}
		}
	}

	return a
}

// visibleLandmarks отбирает ориентиры выше порога видимости
func visibleLandmarks(snapshot PoseSnapshot) []Landmark {
	visible := make([]Landmark, 0, len(snapshot.Landmarks))
	for _, lm := range snapshot.Landmarks {
		if lm.Visibility >= visibilityThreshold {
			visible = append(visible, lm)
		}
	}
	return visible
}

// nearestToBoundary - видимый ориентир, ближайший к границе зоны.
// Вызывается только с непустым срезом.
func (m *Monitor) nearestToBoundary(landmarks []Landmark) (Landmark, float64) {
	nearest := landmarks[0]
	minDist := m.distanceToBoundary(nearest.Position)
	for _, lm := range landmarks[1:] {
		if d := m.distanceToBoundary(lm.Position); d < minDist {
			nearest = lm
			minDist = d
		}
	}
	return nearest, minDist
}

// landmarkLabel - имя ориентира для сообщения инцидента
func landmarkLabel(lm Landmark) string {
	if lm.Name != "" {
		return lm.Name
	}
	return "body"
}

// bodyCenter - центроид видимых ориентиров
func bodyCenter(landmarks []Landmark) geometry.Point {
	var c geometry.Point
	for _, lm := range landmarks {
		c.X += lm.Position.X
		c.Y += lm.Position.Y
		c.Z += lm.Position.Z
	}
	n := float64(len(landmarks))
	c.X /= n
	c.Y /= n
	c.Z /= n
	return c
}

// distanceToBoundary - минимальная дистанция до края прямоугольной зоны.
// Точки вне зоны дают отрицательные значения и сразу попадают в
// критическую полосу.
func (m *Monitor) distanceToBoundary(p geometry.Point) float64 {
	left := p.X
	right := m.constraints.WidthM - p.X
	bottom := p.Y
	top := m.constraints.HeightM - p.Y
	return math.Min(math.Min(left, right), math.Min(bottom, top))
}

// velocity - скорость центра тела между двумя снимками, м/с
func (m *Monitor) velocity(current, previous PoseSnapshot) (float64, bool) {
	dtMS := current.TsMS - previous.TsMS
	if dtMS <= 0 {
		return 0, false
	}

	prevVisible := visibleLandmarks(previous)
	curVisible := visibleLandmarks(current)
	if len(prevVisible) < minVisibleLandmarks || len(curVisible) < minVisibleLandmarks {
		return 0, false
	}

	dist := geometry.Distance(bodyCenter(prevVisible), bodyCenter(curVisible))
	return dist / (float64(dtMS) / 1000.0), true
}
