package slam

import (
	"sort"

	"github.com/paulmach/orb"
)

// planeBasis builds an orthonormal (u, v) basis spanning a plane with the
// given unit normal, used to flatten a plane's 3D hull points into 2D for
// convex-hull recomputation.
func planeBasis(normal Vec3) (u, v Vec3) {
	ref := Vec3{X: 1, Y: 0, Z: 0}
	if ref.Dot(normal) > 0.9 {
		ref = Vec3{X: 0, Y: 1, Z: 0}
	}
	u = ref.Sub(normal.Scale(ref.Dot(normal)))
	if n := u.Norm(); n > 1e-9 {
		u = u.Scale(1 / n)
	}
	v = Vec3{
		X: normal.Y*u.Z - normal.Z*u.Y,
		Y: normal.Z*u.X - normal.X*u.Z,
		Z: normal.X*u.Y - normal.Y*u.X,
	}
	return u, v
}

// unionHull merges two cumulative plane hulls into the 2D convex hull of
// their combined points, lifted back into the plane's 3D frame. Points are
// projected onto the plane's own basis (orb.Point per projected vertex, the
// same flattening mesh.UnionPolygons used for floor-segment merging) so the
// hull stays a tight boundary instead of an ever-growing point cloud.
func unionHull(a, b []Vec3, coeffs Plane) []Vec3 {
	all := make([]Vec3, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	if len(all) < 3 {
		return all
	}

	normal := coeffs.Normal()
	if normal.Norm() < 1e-9 {
		return all
	}
	origin := normal.Scale(-coeffs.D)
	u, v := planeBasis(normal)

	pts2D := make([]orb.Point, len(all))
	for i, p := range all {
		rel := p.Sub(origin)
		pts2D[i] = orb.Point{rel.Dot(u), rel.Dot(v)}
	}

	hull2D := convexHull(pts2D)
	if len(hull2D) == 0 {
		return all
	}

	out := make([]Vec3, len(hull2D))
	for i, p := range hull2D {
		out[i] = origin.Add(u.Scale(p[0])).Add(v.Scale(p[1]))
	}
	return out
}

// convexHull computes the convex hull of a set of 2D points via Andrew's
// monotone chain, returned in counter-clockwise order.
func convexHull(points []orb.Point) []orb.Point {
	if len(points) < 3 {
		result := make([]orb.Point, len(points))
		copy(result, points)
		return result
	}

	sorted := make([]orb.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i][0] != sorted[j][0] {
			return sorted[i][0] < sorted[j][0]
		}
		return sorted[i][1] < sorted[j][1]
	})

	cross := func(o, a, b orb.Point) float64 {
		return (a[0]-o[0])*(b[1]-o[1]) - (a[1]-o[1])*(b[0]-o[0])
	}

	n := len(sorted)
	hull := make([]orb.Point, 0, 2*n)

	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	lower := len(hull) + 1
	for i := n - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	return hull[:len(hull)-1]
}
