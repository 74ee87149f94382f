package noise

import "math"

// Lattice hashing constants. All arithmetic is int32 with wrap-around so results
// are identical on every platform.
const (
	xNoiseGen     = 1619
	yNoiseGen     = 31337
	zNoiseGen     = 6971
	seedNoiseGen  = 1013
	shiftNoiseGen = 8
)

var gradients = [16][3]float64{
	{1, 1, 0}, {-1, 1, 0}, {1, -1, 0}, {-1, -1, 0},
	{1, 0, 1}, {-1, 0, 1}, {1, 0, -1}, {-1, 0, -1},
	{0, 1, 1}, {0, -1, 1}, {0, 1, -1}, {0, -1, -1},
	{1, 1, 0}, {0, -1, 1}, {-1, 1, 0}, {0, -1, -1},
}

func latticeIndex(ix, iy, iz, seed int32) int32 {
	n := (xNoiseGen*ix + yNoiseGen*iy + zNoiseGen*iz + seedNoiseGen*seed) & 0x7fffffff
	n ^= n >> shiftNoiseGen
	return n & 0x0f
}

// latticeValue returns a value in [-1,1] for an integer lattice point.
func latticeValue(ix, iy, iz, seed int32) float64 {
	n := (xNoiseGen*ix + yNoiseGen*iy + zNoiseGen*iz + seedNoiseGen*seed) & 0x7fffffff
	n = (n >> 13) ^ n
	n = (n*(n*n*60493+19990303) + 1376312589) & 0x7fffffff
	return 1 - float64(n)/1073741824
}

func gradientAt(x, y, z float64, ix, iy, iz, seed int32) float64 {
	g := gradients[latticeIndex(ix, iy, iz, seed)]
	return g[0]*(x-float64(ix)) + g[1]*(y-float64(iy)) + g[2]*(z-float64(iz))
}

func floor32(v float64) int32 {
	return int32(math.Floor(v))
}

func gradientCoherent(x, y, z float64, seed int32, curve SCurve) float64 {
	x0, y0, z0 := floor32(x), floor32(y), floor32(z)
	x1, y1, z1 := x0+1, y0+1, z0+1
	xs := curve.apply(x - float64(x0))
	ys := curve.apply(y - float64(y0))
	zs := curve.apply(z - float64(z0))

	n0 := gradientAt(x, y, z, x0, y0, z0, seed)
	n1 := gradientAt(x, y, z, x1, y0, z0, seed)
	ix0 := lerp(n0, n1, xs)
	n0 = gradientAt(x, y, z, x0, y1, z0, seed)
	n1 = gradientAt(x, y, z, x1, y1, z0, seed)
	ix1 := lerp(n0, n1, xs)
	iy0 := lerp(ix0, ix1, ys)

	n0 = gradientAt(x, y, z, x0, y0, z1, seed)
	n1 = gradientAt(x, y, z, x1, y0, z1, seed)
	ix0 = lerp(n0, n1, xs)
	n0 = gradientAt(x, y, z, x0, y1, z1, seed)
	n1 = gradientAt(x, y, z, x1, y1, z1, seed)
	ix1 = lerp(n0, n1, xs)
	iy1 := lerp(ix0, ix1, ys)

	return lerp(iy0, iy1, zs)
}

func valueCoherent(x, y, z float64, seed int32, curve SCurve) float64 {
	x0, y0, z0 := floor32(x), floor32(y), floor32(z)
	x1, y1, z1 := x0+1, y0+1, z0+1
	xs := curve.apply(x - float64(x0))
	ys := curve.apply(y - float64(y0))
	zs := curve.apply(z - float64(z0))

	ix0 := lerp(latticeValue(x0, y0, z0, seed), latticeValue(x1, y0, z0, seed), xs)
	ix1 := lerp(latticeValue(x0, y1, z0, seed), latticeValue(x1, y1, z0, seed), xs)
	iy0 := lerp(ix0, ix1, ys)
	ix0 = lerp(latticeValue(x0, y0, z1, seed), latticeValue(x1, y0, z1, seed), xs)
	ix1 = lerp(latticeValue(x0, y1, z1, seed), latticeValue(x1, y1, z1, seed), xs)
	iy1 := lerp(ix0, ix1, ys)
	return lerp(iy0, iy1, zs)
}
