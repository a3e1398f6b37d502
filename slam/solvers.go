package slam

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// SolverResult is the explicit outcome every C4 solver returns — never an
// exception or a sentinel transform (§9 design note).
type SolverResult struct {
	Transform Transform
	Inliers   int
	RMSE      float64
	Valid     bool
}

func invalidResult() SolverResult {
	return SolverResult{Transform: IdentityTransform(), RMSE: math.MaxFloat64}
}

// SolveRtPoints computes the rigid transform mapping "from" onto "to" via
// Umeyama's closed-form SVD solution with scale disabled (§4.3). Requires at
// least 3 non-degenerate (non-collinear) correspondences.
func SolveRtPoints(from, to []Vec3) SolverResult {
	n := len(from)
	if n < 3 || n != len(to) {
		return invalidResult()
	}

	meanFrom := Centroid(from)
	meanTo := Centroid(to)

	var sigma Mat3
	for i := 0; i < n; i++ {
		fd := from[i].Sub(meanFrom)
		td := to[i].Sub(meanTo)
		addOuter(&sigma, td, fd, 1.0/float64(n))
	}

	if !finiteMat3(sigma) {
		return invalidResult()
	}

	r := closestRotation(sigma)
	t := meanTo.Sub(r.MulVec(meanFrom))

	res := SolverResult{
		Transform: Transform{R: r, T: t},
		Inliers:   n,
		Valid:     true,
	}
	res.RMSE = rmseOfPoints(from, to, res.Transform)
	return res
}

// SolveRtPlanes computes the rigid transform from >= 3 plane correspondences
// (§4.3): rotation from the cross-covariance of the two normal sets via SVD,
// translation from the stacked system n_dst^T * t = d_src - d_dst solved by
// least squares.
func SolveRtPlanes(from, to []Plane) SolverResult {
	n := len(from)
	if n < 3 || n != len(to) {
		return invalidResult()
	}

	var sigma Mat3
	for i := 0; i < n; i++ {
		addOuter(&sigma, to[i].Normal(), from[i].Normal(), 1.0)
	}
	if !finiteMat3(sigma) {
		return invalidResult()
	}
	r := closestRotation(sigma)

	a := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		nd := to[i].Normal()
		a.Set(i, 0, nd.X)
		a.Set(i, 1, nd.Y)
		a.Set(i, 2, nd.Z)
		b.SetVec(i, from[i].D-to[i].D)
	}
	t, ok := leastSquares(a, b)
	if !ok {
		return invalidResult()
	}

	res := SolverResult{Transform: Transform{R: r, T: t}, Inliers: n, Valid: true}
	res.RMSE = rmseOfPlanes(from, to, res.Transform)
	return res
}

// SolveRtMixed computes the rigid transform from exactly 3 constraints split
// between plane and point correspondences (numPlanes+numPoints==3, §4.3).
// Rotation comes from the sum of the point and plane cross-covariances
// (points weighted 1/n, planes weighted 1); translation is the stacked
// least-squares system of the point equation (I*t = meanTo-R*meanFrom) and
// the plane equations (n_dst_i^T*t = d_src_i - d_dst_i).
func SolveRtMixed(fromPoints, toPoints []Vec3, fromPlanes, toPlanes []Plane) SolverResult {
	numPoints := len(fromPoints)
	numPlanes := len(fromPlanes)
	if numPoints != len(toPoints) || numPlanes != len(toPlanes) || numPoints+numPlanes != 3 {
		return invalidResult()
	}

	var sigma Mat3
	var meanFrom, meanTo Vec3
	if numPoints > 0 {
		meanFrom = Centroid(fromPoints)
		meanTo = Centroid(toPoints)
		w := 1.0 / float64(numPoints)
		for i := 0; i < numPoints; i++ {
			fd := fromPoints[i].Sub(meanFrom)
			td := toPoints[i].Sub(meanTo)
			addOuter(&sigma, td, fd, w)
		}
	}
	for i := 0; i < numPlanes; i++ {
		addOuter(&sigma, toPlanes[i].Normal(), fromPlanes[i].Normal(), 1.0)
	}
	if !finiteMat3(sigma) {
		return invalidResult()
	}
	r := closestRotation(sigma)

	rows := numPlanes
	if numPoints > 0 {
		rows += 3
	}
	a := mat.NewDense(rows, 3, nil)
	b := mat.NewVecDense(rows, nil)
	row := 0
	if numPoints > 0 {
		rhs := meanTo.Sub(r.MulVec(meanFrom))
		a.Set(0, 0, 1)
		a.Set(1, 1, 1)
		a.Set(2, 2, 1)
		b.SetVec(0, rhs.X)
		b.SetVec(1, rhs.Y)
		b.SetVec(2, rhs.Z)
		row = 3
	}
	for i := 0; i < numPlanes; i++ {
		nd := toPlanes[i].Normal()
		a.Set(row, 0, nd.X)
		a.Set(row, 1, nd.Y)
		a.Set(row, 2, nd.Z)
		b.SetVec(row, fromPlanes[i].D-toPlanes[i].D)
		row++
	}

	t, ok := leastSquares(a, b)
	if !ok {
		return invalidResult()
	}

	transform := Transform{R: r, T: t}
	res := SolverResult{Transform: transform, Inliers: numPoints + numPlanes, Valid: true}
	res.RMSE = rmseOfPoints(fromPoints, toPoints, transform) + rmseOfPlanes(fromPlanes, toPlanes, transform)
	return res
}

func rmseOfPoints(from, to []Vec3, t Transform) float64 {
	if len(from) == 0 {
		return 0
	}
	sum := 0.0
	for i := range from {
		d := t.Apply(from[i]).Sub(to[i])
		sum += d.Dot(d)
	}
	return math.Sqrt(sum / float64(len(from)))
}

func rmseOfPlanes(from, to []Plane, t Transform) float64 {
	if len(from) == 0 {
		return 0
	}
	sum := 0.0
	for i := range from {
		p := TransformPlane(from[i], t)
		dn := p.Normal().Sub(to[i].Normal())
		dd := p.D - to[i].D
		sum += dn.Dot(dn) + dd*dd
	}
	return math.Sqrt(sum / float64(len(from)))
}

func addOuter(m *Mat3, a, b Vec3, weight float64) {
	av := [3]float64{a.X, a.Y, a.Z}
	bv := [3]float64{b.X, b.Y, b.Z}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] += weight * av[i] * bv[j]
		}
	}
}

func finiteMat3(m Mat3) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(m[i][j]) || math.IsInf(m[i][j], 0) {
				return false
			}
		}
	}
	return true
}

// leastSquares solves the (possibly overdetermined) system A*t = b for the 3
// translation unknowns. mat.Dense.Solve falls back to a QR-based
// least-squares solution for non-square systems, which degrades gracefully
// on rank-deficient systems instead of via a brittle explicit inverse.
func leastSquares(a *mat.Dense, b *mat.VecDense) (Vec3, bool) {
	var x mat.Dense
	if err := x.Solve(a, b); err != nil {
		return Vec3{}, false
	}
	v := Vec3{X: x.At(0, 0), Y: x.At(1, 0), Z: x.At(2, 0)}
	if !v.Valid() {
		return Vec3{}, false
	}
	return v, true
}
