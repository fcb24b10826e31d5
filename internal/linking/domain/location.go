package domain

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Location is a position inside a named world.
type Location struct {
	World string
	Pos   mgl64.Vec3
	Yaw   float64
	Pitch float64
}

// BlockX returns the block column the position falls in on the X axis.
func (l Location) BlockX() int { return int(math.Floor(l.Pos.X())) }

// BlockY returns the block layer the position falls in.
func (l Location) BlockY() int { return int(math.Floor(l.Pos.Y())) }

// BlockZ returns the block column the position falls in on the Z axis.
func (l Location) BlockZ() int { return int(math.Floor(l.Pos.Z())) }

// SameColumn reports whether both locations share world and block X/Z.
func (l Location) SameColumn(o Location) bool {
	return l.World == o.World && l.BlockX() == o.BlockX() && l.BlockZ() == o.BlockZ()
}

// BlockCentre returns the location snapped to the centre of its block on the
// horizontal plane, at the block's floor height, keeping yaw and pitch.
func (l Location) BlockCentre() Location {
	return Location{
		World: l.World,
		Pos:   mgl64.Vec3{float64(l.BlockX()) + 0.5, float64(l.BlockY()), float64(l.BlockZ()) + 0.5},
		Yaw:   l.Yaw,
		Pitch: l.Pitch,
	}
}
