package cure

import "gonum.org/v1/gonum/mat"

// The cure distortion and fiber model fits are 7th-order bivariate
// Chebyshev series with a fixed 36-term ordering. The helpers below
// reproduce that ordering exactly; evaluating a model anywhere else in
// the package goes through interpCheby2D7.

// chebT returns T_0..T_7 of the Chebyshev polynomials of the first
// kind at x, via the three-term recurrence.
func chebT(x float64) [8]float64 {
	var t [8]float64
	t[0] = 1
	t[1] = x
	for i := 2; i < 8; i++ {
		t[i] = 2*x*t[i-1] - t[i-2]
	}
	return t
}

// cheby2D7Terms fills the 36-term design row for the cure coefficient
// ordering at (x, y).
func cheby2D7Terms(x, y float64) []float64 {
	tx := chebT(x)
	ty := chebT(y)
	return []float64{
		tx[7], tx[6], tx[5], tx[4], tx[3], tx[2], tx[1],
		ty[7], ty[6], ty[5], ty[4], ty[3], ty[2], ty[1],
		tx[6] * ty[1], tx[1] * ty[6], tx[5] * ty[2], tx[2] * ty[5],
		tx[4] * ty[3], tx[3] * ty[4], tx[5] * ty[1], tx[1] * ty[5],
		tx[4] * ty[2], tx[2] * ty[4], tx[3] * ty[3], tx[4] * ty[1],
		tx[1] * ty[4], tx[3] * ty[2], tx[2] * ty[3], tx[3] * ty[1],
		tx[1] * ty[3], tx[2] * ty[2], tx[2] * ty[1], tx[1] * ty[2],
		tx[1] * ty[1], tx[0],
	}
}

// interpCheby2D7 evaluates the series with coefficients p at (x, y).
func interpCheby2D7(x, y float64, p []float64) float64 {
	row := cheby2D7Terms(x, y)
	return mat.Dot(mat.NewVecDense(len(row), row), mat.NewVecDense(len(p), p))
}
