package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/golang/geo/r3"
)

// A Camera shoots one ray per pixel from a position, looking along yaw and pitch (degrees). Yaw 0
// looks down +x, yaw 90 down +z; pitch is clamped short of straight up or down.
type Camera struct {
	Position r3.Vector
	Yaw      float64
	Pitch    float64
	// FOV is the vertical field of view in degrees.
	FOV float64
}

// Front returns the unit view direction.
func (c Camera) Front() mgl32.Vec3 {
	pitch := mgl32.DegToRad(float32(math.Max(-89.99, math.Min(89.99, c.Pitch))))
	yaw := mgl32.DegToRad(float32(c.Yaw))
	return mgl32.Vec3{
		float32(math.Cos(float64(yaw)) * math.Cos(float64(pitch))),
		float32(math.Sin(float64(pitch))),
		float32(math.Sin(float64(yaw)) * math.Cos(float64(pitch))),
	}.Normalize()
}

// Ray returns the ray through the center of pixel (x, y) of a width by height image. Row 0 is the
// top of the image.
func (c Camera) Ray(x, y, width, height int) Ray {
	front := c.Front()
	right := front.Cross(mgl32.Vec3{0, 1, 0}).Normalize()
	up := right.Cross(front)

	fov := c.FOV
	if fov <= 0 {
		fov = 60
	}
	halfHeight := float32(math.Tan(float64(mgl32.DegToRad(float32(fov))) / 2))
	halfWidth := halfHeight * float32(width) / float32(height)

	u := (2*(float32(x)+0.5)/float32(width) - 1) * halfWidth
	v := (1 - 2*(float32(y)+0.5)/float32(height)) * halfHeight
	dir := front.Add(right.Mul(u)).Add(up.Mul(v)).Normalize()
	return Ray{
		Origin:    c.Position,
		Direction: r3.Vector{X: float64(dir[0]), Y: float64(dir[1]), Z: float64(dir[2])},
	}
}
