package audio

// Framer regroups arbitrarily sized sample slices into fixed-size frames.
// A frame is emitted as soon as it is full; the remainder is held until the
// next Push.
type Framer struct {
	size int
	buf  []float32
}

func NewFramer(size int) *Framer {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &Framer{size: size, buf: make([]float32, 0, size)}
}

// Size returns the frame length in samples.
func (f *Framer) Size() int { return f.size }

// Push appends samples and returns every completed frame in order.
func (f *Framer) Push(samples []float32) [][]float32 {
	var frames [][]float32
	for len(samples) > 0 {
		n := f.size - len(f.buf)
		if n > len(samples) {
			n = len(samples)
		}
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) == f.size {
			frame := make([]float32, f.size)
			copy(frame, f.buf)
			frames = append(frames, frame)
			f.buf = f.buf[:0]
		}
	}
	return frames
}

// Pending is the number of buffered samples not yet part of a frame.
func (f *Framer) Pending() int { return len(f.buf) }

// Reset drops buffered samples.
func (f *Framer) Reset() { f.buf = f.buf[:0] }
