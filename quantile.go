package actorloop

import (
	"slices"
)

// quantile is a P² streaming estimator (Jain & Chlamtac, 1985) of a single
// quantile. It keeps five markers, and adjusts the middle three with a
// piecewise-parabolic fit as observations arrive. Not safe for concurrent
// use.
type quantile struct {
	height  [5]float64
	pos     [5]int
	want    [5]float64
	step    [5]float64
	warm    [5]float64
	p       float64
	samples int
}

func newQuantile(p float64) *quantile {
	p = min(max(p, 0), 1)
	return &quantile{
		p:    p,
		step: [5]float64{0, p / 2, p, (1 + p) / 2, 1},
	}
}

func (x *quantile) observe(v float64) {
	x.samples++
	if x.samples <= len(x.warm) {
		x.warm[x.samples-1] = v
		if x.samples == len(x.warm) {
			x.height = x.warm
			slices.Sort(x.height[:])
			x.pos = [5]int{0, 1, 2, 3, 4}
			x.want = [5]float64{0, 2 * x.p, 4 * x.p, 2 + 2*x.p, 4}
		}
		return
	}

	var cell int
	switch {
	case v < x.height[0]:
		x.height[0] = v
	case v >= x.height[4]:
		x.height[4] = v
		cell = 3
	default:
		for cell < 3 && v >= x.height[cell+1] {
			cell++
		}
	}

	for i := cell + 1; i < 5; i++ {
		x.pos[i]++
	}
	for i := range x.want {
		x.want[i] += x.step[i]
	}

	for i := 1; i < 4; i++ {
		d := x.want[i] - float64(x.pos[i])
		if !(d >= 1 && x.pos[i+1]-x.pos[i] > 1) && !(d <= -1 && x.pos[i-1]-x.pos[i] < -1) {
			continue
		}
		dir := 1
		if d < 0 {
			dir = -1
		}
		if h := x.parabolic(i, dir); x.height[i-1] < h && h < x.height[i+1] {
			x.height[i] = h
		} else {
			x.height[i] = x.linear(i, dir)
		}
		x.pos[i] += dir
	}
}

func (x *quantile) parabolic(i, dir int) float64 {
	d := float64(dir)
	n0, n1, n2 := float64(x.pos[i-1]), float64(x.pos[i]), float64(x.pos[i+1])
	return x.height[i] + d/(n2-n0)*((n1-n0+d)*(x.height[i+1]-x.height[i])/(n2-n1)+
		(n2-n1-d)*(x.height[i]-x.height[i-1])/(n1-n0))
}

func (x *quantile) linear(i, dir int) float64 {
	j := i + dir
	return x.height[i] + float64(dir)*(x.height[j]-x.height[i])/float64(x.pos[j]-x.pos[i])
}

func (x *quantile) value() float64 {
	switch {
	case x.samples == 0:
		return 0
	case x.samples < len(x.warm):
		sorted := slices.Clone(x.warm[:x.samples])
		slices.Sort(sorted)
		return sorted[int(float64(len(sorted)-1)*x.p)]
	default:
		return x.height[2]
	}
}
