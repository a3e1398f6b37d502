package slam

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec3 is a 3D vector in meters (map frame unless stated otherwise).
type Vec3 struct {
	X, Y, Z float64
}

// NaNVec3 marks a back-projection with invalid or missing depth.
var NaNVec3 = Vec3{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}

// Valid reports whether all three components are finite.
func (v Vec3) Valid() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}

// Add, Sub, Scale and Dot are the usual vector-space operations.
func (v Vec3) Add(o Vec3) Vec3    { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3    { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

// Norm is the Euclidean length.
func (v Vec3) Norm() float64 { return math.Sqrt(v.Dot(v)) }

// Distance is the Euclidean distance between two points.
func Distance(a, b Vec3) float64 { return a.Sub(b).Norm() }

// Mat3 is a row-major 3x3 rotation matrix.
type Mat3 [3][3]float64

// Identity3 is the identity rotation.
func Identity3() Mat3 {
	return Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// MulVec applies the rotation to a vector.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Mul composes two rotations: result = m * o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			s := 0.0
			for k := 0; k < 3; k++ {
				s += m[i][k] * o[k][j]
			}
			r[i][j] = s
		}
	}
	return r
}

// Transpose returns the transpose, which is also the inverse for a proper rotation.
func (m Mat3) Transpose() Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[j][i]
		}
	}
	return r
}

// Det is the 3x3 determinant.
func (m Mat3) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// AngleDeg returns the rotation angle in degrees represented by this matrix
// (assumed orthonormal), via the trace identity trace(R) = 1 + 2*cos(theta).
func (m Mat3) AngleDeg() float64 {
	trace := m[0][0] + m[1][1] + m[2][2]
	c := (trace - 1) / 2
	if c > 1 {
		c = 1
	}
	if c < -1 {
		c = -1
	}
	return math.Acos(c) * 180 / math.Pi
}

// ToDense converts to a gonum dense matrix for SVD work.
func (m Mat3) ToDense() *mat.Dense {
	d := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			d.Set(i, j, m[i][j])
		}
	}
	return d
}

func mat3FromDense(d mat.Matrix) Mat3 {
	var m Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = d.At(i, j)
		}
	}
	return m
}

// Transform is a rigid 6-DoF element (R, t) mapping a point in the "from"
// frame to the "to" frame: p' = R*p + t.
type Transform struct {
	R Mat3
	T Vec3
}

// IdentityTransform is the no-op rigid transform.
func IdentityTransform() Transform {
	return Transform{R: Identity3()}
}

// Apply transforms a point by this rigid transform.
func (t Transform) Apply(p Vec3) Vec3 {
	return t.R.MulVec(p).Add(t.T)
}

// Compose returns t1 followed by t2's domain composition: (t1 . t2) applies
// t2 first, then t1 — i.e. Compose(t1,t2).Apply(p) == t1.Apply(t2.Apply(p)).
func Compose(t1, t2 Transform) Transform {
	return Transform{
		R: t1.R.Mul(t2.R),
		T: t1.R.MulVec(t2.T).Add(t1.T),
	}
}

// Inverse returns the inverse rigid transform: (R,t)^-1 = (R^T, -R^T*t).
func (t Transform) Inverse() Transform {
	rInv := t.R.Transpose()
	return Transform{R: rInv, T: rInv.MulVec(t.T).Scale(-1)}
}

// TranslationNorm and RotationAngleDeg are the magnitude measures the
// validator in §4.4 checks against configured thresholds.
func (t Transform) TranslationNorm() float64 { return t.T.Norm() }
func (t Transform) RotationAngleDeg() float64 { return t.R.AngleDeg() }

// Planar projects a full 6-DoF correction onto the 2D robot odometry plane
// (x, y, yaw): z, roll and pitch are dropped and only the rotation about the
// world Z axis survives, so the result composes with a 2-D odometry chain
// (§6 map<-odom output).
func (t Transform) Planar() Transform {
	yaw := math.Atan2(t.R[1][0], t.R[0][0])
	c, s := math.Cos(yaw), math.Sin(yaw)
	r := Mat3{
		{c, -s, 0},
		{s, c, 0},
		{0, 0, 1},
	}
	return Transform{R: r, T: Vec3{X: t.T.X, Y: t.T.Y}}
}

// Quaternion returns (x, y, z, w) for this rotation matrix, used by the
// path-file export format (§6).
func (m Mat3) Quaternion() (x, y, z, w float64) {
	trace := m[0][0] + m[1][1] + m[2][2]
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1.0)
		w = 0.25 / s
		x = (m[2][1] - m[1][2]) * s
		y = (m[0][2] - m[2][0]) * s
		z = (m[1][0] - m[0][1]) * s
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := 2.0 * math.Sqrt(1.0+m[0][0]-m[1][1]-m[2][2])
		w = (m[2][1] - m[1][2]) / s
		x = 0.25 * s
		y = (m[0][1] + m[1][0]) / s
		z = (m[0][2] + m[2][0]) / s
	case m[1][1] > m[2][2]:
		s := 2.0 * math.Sqrt(1.0+m[1][1]-m[0][0]-m[2][2])
		w = (m[0][2] - m[2][0]) / s
		x = (m[0][1] + m[1][0]) / s
		y = 0.25 * s
		z = (m[1][2] + m[2][1]) / s
	default:
		s := 2.0 * math.Sqrt(1.0+m[2][2]-m[0][0]-m[1][1])
		w = (m[1][0] - m[0][1]) / s
		x = (m[0][2] + m[2][0]) / s
		y = (m[1][2] + m[2][1]) / s
		z = 0.25 * s
	}
	return x, y, z, w
}

// Plane is a unit-normal plane aX+bY+cZ+d=0, canonicalized with d >= 0.
type Plane struct {
	A, B, C, D float64
}

// NewPlane normalizes (a,b,c,d) to unit normal length and canonical sign.
func NewPlane(a, b, c, d float64) Plane {
	n := math.Sqrt(a*a + b*b + c*c)
	if n < 1e-12 {
		return Plane{}
	}
	a, b, c, d = a/n, b/n, c/n, d/n
	if d < 0 {
		a, b, c, d = -a, -b, -c, -d
	}
	return Plane{A: a, B: b, C: c, D: d}
}

// Normal returns the unit normal vector.
func (p Plane) Normal() Vec3 { return Vec3{p.A, p.B, p.C} }

// SignedDistance returns aX+bY+cZ+d for a point.
func (p Plane) SignedDistance(pt Vec3) float64 {
	return p.A*pt.X + p.B*pt.Y + p.C*pt.Z + p.D
}

// TransformPlane applies the plane transform rule under T=(R,t):
// n' = R*n, d' = d - n'.t, then re-canonicalizes sign.
func TransformPlane(p Plane, t Transform) Plane {
	n := t.R.MulVec(p.Normal())
	d := p.D - n.Dot(t.T)
	return NewPlane(n.X, n.Y, n.Z, d)
}

// AngleBetweenNormals returns the angle in degrees between two plane normals,
// folded into [0,90] since a plane's normal sign is not physically meaningful
// for co-planarity checks.
func AngleBetweenNormals(p, q Plane) float64 {
	c := p.Normal().Dot(q.Normal())
	if c > 1 {
		c = 1
	}
	if c < -1 {
		c = -1
	}
	angle := math.Acos(math.Abs(c)) * 180 / math.Pi
	return angle
}

// Centroid returns the mean of a set of points. Returns the zero vector for
// an empty set.
func Centroid(points []Vec3) Vec3 {
	if len(points) == 0 {
		return Vec3{}
	}
	var sum Vec3
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Scale(1 / float64(len(points)))
}

// closestRotation projects a 3x3 matrix onto SO(3) via SVD, the shared
// mechanics behind Umeyama (C4): M = U*S*V^T, R = U*diag(1,1,sign)*V^T.
func closestRotation(m Mat3) Mat3 {
	var svd mat.SVD
	ok := svd.Factorize(m.ToDense(), mat.SVDFull)
	if !ok {
		return Identity3()
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sv := svd.Values(nil)

	ud := mat3FromDense(&u)
	vd := mat3FromDense(&v)
	detUV := ud.Det() * vd.Det()

	rank := 0
	if len(sv) > 0 {
		for _, s := range sv {
			if s > sv[0]*1e-8 {
				rank++
			}
		}
	}

	s := [3]float64{1, 1, 1}
	if rank < 3 {
		if rank == 2 {
			if detUV <= 0 {
				s[2] = -1
			}
		} else {
			s[2] = signOrOne(detUV)
		}
	} else if detUV < 0 {
		s[2] = -1
	}

	var sMat mat.Dense
	sMat.CloneFrom(mat.NewDiagDense(3, s[:]))

	var r mat.Dense
	r.Mul(&u, &sMat)
	var rFull mat.Dense
	rFull.Mul(&r, v.T())
	return mat3FromDense(&rFull)
}

func signOrOne(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
