package geometry

import "math"

// Point представляет точку в пространстве корта (метры).
// Z опционален: 2-D входы оставляют его нулевым.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z,omitempty"`
}

// Distance возвращает евклидово расстояние между точками
// в той же системе координат, что и входы (2-D или 3-D)
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// AngleBetween возвращает угол при вершине b, образованный лучами к a и c,
// в градусах в диапазоне [0, 180]. Совпадение вершины с концом луча
// не определяет угол - по принятой политике возвращается 0.
func AngleBetween(a, b, c Point) float64 {
	if (a.X == b.X && a.Y == b.Y) || (c.X == b.X && c.Y == b.Y) {
		return 0
	}

	angle := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	deg := math.Abs(angle * 180.0 / math.Pi)

	if deg > 180.0 {
		deg = 360.0 - deg
	}

	return deg
}

// WithinTolerance классифицирует точку p относительно цели target:
// попадание, если расстояние не превышает радиус допуска (метры).
// Возвращает также само расстояние для записи в событие.
func WithinTolerance(p, target Point, radiusM float64) (bool, float64) {
	d := Distance(p, target)
	return d <= radiusM, d
}
