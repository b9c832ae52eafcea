package fingerprint

// Noise injection perturbs returned pixel and sample data so a page
// cannot derive a stable fingerprint from it. Off by default. The
// perturbation is bounded to one step per value, which keeps rendered
// output visually identical while breaking hash stability.

const (
	canvasNoiseSeed = 0x9E3779B97F4A7C15
	audioNoiseSeed  = 0xC2B2AE3D27D4EB4F
)

// noiseSource is a small splitmix-style PRNG. Deterministic for a seed,
// which keeps the noise path testable.
type noiseSource struct {
	state uint64
}

func newNoiseSource(seed uint64) *noiseSource {
	return &noiseSource{state: seed}
}

func (n *noiseSource) next() uint64 {
	n.state += 0x9E3779B97F4A7C15
	z := n.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// delta returns -1, 0 or +1.
func (n *noiseSource) delta() int {
	return int(n.next()%3) - 1
}

// perturbBytes shifts each byte by at most one, saturating at the
// range bounds so the data stays well-formed.
func (n *noiseSource) perturbBytes(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	out := make([]byte, len(data))
	for i, b := range data {
		v := int(b) + n.delta()
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		out[i] = byte(v)
	}
	return out
}

// perturbSamples shifts each sample by at most one quantization step of
// a 16-bit signal, clamped to [-1, 1].
func (n *noiseSource) perturbSamples(data []float32) []float32 {
	if len(data) == 0 {
		return data
	}
	const step = 1.0 / 32768.0
	out := make([]float32, len(data))
	for i, s := range data {
		v := s + float32(n.delta())*step
		if v < -1 {
			v = -1
		}
		if v > 1 {
			v = 1
		}
		out[i] = v
	}
	return out
}
