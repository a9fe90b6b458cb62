package value

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Poses are Vector6d values [x, y, z, rx, ry, rz]: a translation in metres followed by a rotation vector,
// whose direction is the rotation axis and whose length is the angle in radians.

// Position returns the translation of a pose.
func (v Vector6d) Position() Vector3d { return Vector3d{v[0], v[1], v[2]} }

// RotationVector returns the rotation vector of a pose.
func (v Vector6d) RotationVector() Vector3d { return Vector3d{v[3], v[4], v[5]} }

// NewPose builds a pose from a translation and a rotation vector.
func NewPose(pos Vector3d, rv Vector3d) Vector6d {
	return Vector6d{pos[0], pos[1], pos[2], rv[0], rv[1], rv[2]}
}

// PoseMatrix returns the homogeneous transform of pose.
func PoseMatrix(pose Vector6d) mgl64.Mat4 {
	rot := mgl64.Ident4()
	rv := pose.RotationVector()
	if angle := rv.Len(); angle > 1e-12 {
		rot = mgl64.HomogRotate3D(angle, rv.Mul(1/angle))
	}

	return mgl64.Translate3D(pose[0], pose[1], pose[2]).Mul4(rot)
}

// PoseFromMatrix converts a rigid homogeneous transform back to a pose. The rotation angle is in [0, pi].
func PoseFromMatrix(m mgl64.Mat4) Vector6d {
	pos := m.Col(3).Vec3()

	q := mgl64.Mat4ToQuat(m).Normalize()
	if q.W < 0 {
		q = q.Scale(-1)
	}
	w := math.Min(q.W, 1)
	s := math.Sqrt(1 - w*w)
	if s < 1e-12 {
		return NewPose(pos, Vector3d{})
	}

	return NewPose(pos, q.V.Mul(2*math.Acos(w)/s))
}

// PoseTrans applies delta, expressed in the frame of base, to base. Translating by {0, 0, 0.1, 0, 0, 0}
// moves 10 cm along the z axis of base itself rather than of the robot base.
func PoseTrans(base, delta Vector6d) Vector6d {
	return PoseFromMatrix(PoseMatrix(base).Mul4(PoseMatrix(delta)))
}

// PoseDistance returns the translational distance between two poses in metres.
func PoseDistance(a, b Vector6d) float64 {
	return a.Position().Sub(b.Position()).Len()
}
