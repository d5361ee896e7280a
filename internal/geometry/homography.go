package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 projective transform stored row-major with H[8] == 1.
type Homography [9]float64

// Apply maps a point through the transform. ok is false when the point maps
// to infinity.
func (h Homography) Apply(p PointF) (PointF, bool) {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	if w == 0 {
		return PointF{}, false
	}
	return PointF{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}, true
}

// SolveHomography computes the unique projective transform mapping each
// src[i] onto dst[i].
//
// With h33 fixed to 1 every correspondence (x, y) -> (u, v) contributes two
// linear equations:
//
//	h11*x + h12*y + h13 - h31*x*u - h32*y*u = u
//	h21*x + h22*y + h23 - h31*x*v - h32*y*v = v
//
// The resulting 8x8 system is solved with gonum. Three collinear points make
// the system singular and yield ErrDegenerateQuad.
func SolveHomography(src, dst [4]PointF) (Homography, error) {
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		A.Set(i*2, 6, -x*u)
		A.Set(i*2, 7, -y*u)
		B.SetVec(i*2, u)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		A.Set(i*2+1, 6, -x*v)
		A.Set(i*2+1, 7, -y*v)
		B.SetVec(i*2+1, v)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h[i] = params.AtVec(i)
	}
	h[8] = 1
	return h, nil
}

// QuadF converts an integer quad into floating-point corners.
func QuadF(q Quad) [4]PointF {
	return [4]PointF{q[0].Float(), q[1].Float(), q[2].Float(), q[3].Float()}
}
