package filter

// BandEdges are the five fixed frequency bands used by the onset
// detectors, in Hz.
var BandEdges = [5][2]float64{
	{20, 150},
	{150, 400},
	{400, 800},
	{800, 2000},
	{2000, 6000},
}

// Band couples a fixed frequency range with the HP+LP biquad pair that
// isolates it.
type Band struct {
	LowHz, HighHz float64
	hp, lp        *Section
}

// BandSplitter applies a global prefilter (adjustable HP/LP) followed by
// five fixed-edge band-pass filters, each built from an HP+LP biquad pair.
// All filter state belongs to the worker: it is touched only on the
// Worker thread except during Prepare, which runs under the pipeline
// mutex.
type BandSplitter struct {
	sampleRate float64

	prefilterHp *Section
	prefilterLp *Section
	hpfHz       float64
	lpfHz       float64

	bands [5]Band

	// pending holds a requested prefilter edge change, applied on the next
	// ProcessChunk call rather than immediately, per the "applied on the
	// next chunk" contract.
	pendingHpfHz, pendingLpfHz float64
	hasPending                 bool

	scratch []float64
}

// NewBandSplitter builds filters for the given sample rate and prefilter
// edges.
func NewBandSplitter(sampleRate, hpfHz, lpfHz float64) *BandSplitter {
	bs := &BandSplitter{}
	bs.Prepare(sampleRate, hpfHz, lpfHz)
	return bs
}

// Prepare rebuilds every filter for a new sample rate (or on pipeline
// (re)prepare after a rate change). All prior filter state is discarded.
func (bs *BandSplitter) Prepare(sampleRate, hpfHz, lpfHz float64) {
	bs.sampleRate = sampleRate
	bs.hpfHz = hpfHz
	bs.lpfHz = lpfHz
	bs.hasPending = false

	bs.prefilterHp = NewSection(HighPass(hpfHz, sampleRate))
	bs.prefilterLp = NewSection(LowPass(lpfHz, sampleRate))

	for i, edge := range BandEdges {
		bs.bands[i] = Band{
			LowHz:  edge[0],
			HighHz: edge[1],
			hp:     NewSection(HighPass(edge[0], sampleRate)),
			lp:     NewSection(LowPass(edge[1], sampleRate)),
		}
	}
}

// SetPrefilterEdges requests new global HP/LP cutoffs. The change takes
// effect on the next call to ProcessChunk, not immediately, matching the
// control-input contract: "applied on the next chunk".
func (bs *BandSplitter) SetPrefilterEdges(hpfHz, lpfHz float64) {
	bs.pendingHpfHz = hpfHz
	bs.pendingLpfHz = lpfHz
	bs.hasPending = true
}

// ProcessChunk applies the global prefilter in place to chunk, then
// produces five band-limited copies into dst (which must have 5 slices,
// each at least len(chunk)). chunk is mutated; dst[b] receives an
// independent copy run through band b's filter pair.
func (bs *BandSplitter) ProcessChunk(chunk []float64, dst [5][]float64) {
	if bs.hasPending {
		bs.prefilterHp = NewSection(HighPass(bs.pendingHpfHz, bs.sampleRate))
		bs.prefilterLp = NewSection(LowPass(bs.pendingLpfHz, bs.sampleRate))
		bs.hpfHz, bs.lpfHz = bs.pendingHpfHz, bs.pendingLpfHz
		bs.hasPending = false
	}

	bs.prefilterHp.ProcessBlock(chunk)
	bs.prefilterLp.ProcessBlock(chunk)

	for i := range bs.bands {
		copy(dst[i], chunk)
		bs.bands[i].hp.ProcessBlock(dst[i][:len(chunk)])
		bs.bands[i].lp.ProcessBlock(dst[i][:len(chunk)])
	}
}
