package capture

// pcmToFloat32 converts interleaved 32-bit signed PCM samples, as
// reported by the PortAudio driver, into normalized float32 samples in
// [-1, 1], writing into dst (which must be at least len(src) long) and
// returning the written slice.
func pcmToFloat32(src []int32, dst []float32) []float32 {
	const scale = 1.0 / 2147483648.0
	dst = dst[:len(src)]
	for i, s := range src {
		dst[i] = float32(s) * scale
	}
	return dst
}
