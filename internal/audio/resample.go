package audio

// Resample converts mono samples between rates with linear interpolation.
// Good enough for speech between the 16/24/48 kHz rates used here.
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	if n == 0 {
		return nil
	}
	out := make([]float32, n)
	step := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx] + (in[idx+1]-in[idx])*frac
	}
	return out
}

// DownmixStereo averages interleaved stereo samples into mono.
func DownmixStereo(in []int16) []int16 {
	out := make([]int16, len(in)/2)
	for i := range out {
		out[i] = int16((int32(in[2*i]) + int32(in[2*i+1])) / 2)
	}
	return out
}

// UpmixStereo duplicates mono samples into interleaved stereo.
func UpmixStereo(in []int16) []int16 {
	out := make([]int16, len(in)*2)
	for i, v := range in {
		out[2*i] = v
		out[2*i+1] = v
	}
	return out
}
