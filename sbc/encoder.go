package sbc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/icza/bitio"
	"github.com/sirupsen/logrus"
)

const syncword = 0x9C

// Encoder turns interleaved 16-bit little-endian PCM into SBC frames.
// An Encoder is not safe for concurrent use.
type Encoder struct {
	params      Params
	analysis    *analysis
	codeSize    int
	frameLength int
	buf         bytes.Buffer
}

// NewEncoder creates an encoder for the given parameters.
func NewEncoder(p Params) (*Encoder, error) {
	e := &Encoder{}
	if err := e.Reset(p); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset reconfigures the encoder and clears the filterbank history.
func (e *Encoder) Reset(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if e.analysis == nil || e.analysis.subbands != p.Subbands {
		e.analysis = newAnalysis(p.Subbands)
	} else {
		e.analysis.reset()
	}
	e.params = p
	e.codeSize = p.CodeSize()
	e.frameLength = p.FrameLength()

	logrus.WithFields(logrus.Fields{
		"function":     "Encoder.Reset",
		"frequency":    p.Frequency.String(),
		"mode":         p.Mode.String(),
		"allocation":   p.Allocation.String(),
		"subbands":     p.Subbands,
		"blocks":       p.Blocks,
		"bitpool":      p.Bitpool,
		"code_size":    e.codeSize,
		"frame_length": e.frameLength,
	}).Debug("SBC encoder configured")
	return nil
}

// Params returns the active configuration.
func (e *Encoder) Params() Params {
	return e.params
}

// CodeSize returns the PCM bytes consumed per frame.
func (e *Encoder) CodeSize() int {
	return e.codeSize
}

// FrameLength returns the encoded bytes produced per frame.
func (e *Encoder) FrameLength() int {
	return e.frameLength
}

// FrameDuration returns the frame duration in microseconds.
func (e *Encoder) FrameDuration() uint32 {
	return e.params.FrameDuration()
}

// Encode encodes exactly one frame from the start of pcm into out and
// reports the bytes read and written.
func (e *Encoder) Encode(pcm, out []byte) (read, written int, err error) {
	if len(pcm) < e.codeSize {
		return 0, 0, fmt.Errorf("%w: have %d, need %d", ErrShortInput, len(pcm), e.codeSize)
	}
	if len(out) < e.frameLength {
		return 0, 0, fmt.Errorf("%w: have %d, need %d", ErrShortOutput, len(out), e.frameLength)
	}

	p := e.params
	m := p.Subbands
	channels := p.Channels()

	// samples[ch][blk*m+sb]
	var samples [2][]float64
	for ch := 0; ch < channels; ch++ {
		samples[ch] = make([]float64, p.Blocks*m)
	}
	in := make([]float64, m)
	for blk := 0; blk < p.Blocks; blk++ {
		for ch := 0; ch < channels; ch++ {
			for i := 0; i < m; i++ {
				off := ((blk*m+i)*channels + ch) * 2
				in[i] = float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
			}
			e.analysis.block(ch, in, samples[ch][blk*m:(blk+1)*m])
		}
	}

	var scaleFactors [2][8]int
	for ch := 0; ch < channels; ch++ {
		for sb := 0; sb < m; sb++ {
			scaleFactors[ch][sb] = scaleFactor(samples[ch], sb, m, p.Blocks)
		}
	}

	var join uint8
	if p.Mode == ModeJointStereo {
		join = joinStereo(&samples, &scaleFactors, m, p.Blocks)
	}

	var bits [2][8]int
	allocateBits(p, &scaleFactors, &bits)

	e.buf.Reset()
	if err := e.writeFrame(&samples, &scaleFactors, &bits, join); err != nil {
		return 0, 0, err
	}

	n := copy(out[:e.frameLength], e.buf.Bytes())
	for i := n; i < e.frameLength; i++ {
		out[i] = 0
	}
	return e.codeSize, e.frameLength, nil
}

func (e *Encoder) writeFrame(samples *[2][]float64, scaleFactors, bits *[2][8]int, join uint8) error {
	p := e.params
	m := p.Subbands
	channels := p.Channels()

	header := uint8(p.Frequency)<<6 | p.blocksCode()<<4 | uint8(p.Mode)<<2 | uint8(p.Allocation)<<1 | p.subbandsCode()

	crc := newCRC8()
	crc.writeBits(uint64(header), 8)
	crc.writeBits(uint64(p.Bitpool), 8)
	if p.Mode == ModeJointStereo {
		crc.writeBits(uint64(join), uint8(m))
	}
	for ch := 0; ch < channels; ch++ {
		for sb := 0; sb < m; sb++ {
			crc.writeBits(uint64(scaleFactors[ch][sb]), 4)
		}
	}

	w := bitio.NewWriter(&e.buf)
	w.TryWriteByte(syncword)
	w.TryWriteByte(header)
	w.TryWriteByte(p.Bitpool)
	w.TryWriteByte(crc.sum())
	if p.Mode == ModeJointStereo {
		w.TryWriteBits(uint64(join), uint8(m))
	}
	for ch := 0; ch < channels; ch++ {
		for sb := 0; sb < m; sb++ {
			w.TryWriteBits(uint64(scaleFactors[ch][sb]), 4)
		}
	}
	for blk := 0; blk < p.Blocks; blk++ {
		for ch := 0; ch < channels; ch++ {
			for sb := 0; sb < m; sb++ {
				b := bits[ch][sb]
				if b == 0 {
					continue
				}
				q := quantize(samples[ch][blk*m+sb], scaleFactors[ch][sb], b)
				w.TryWriteBits(uint64(q), uint8(b))
			}
		}
	}
	if w.TryError != nil {
		return fmt.Errorf("writing SBC frame: %w", w.TryError)
	}
	return w.Close()
}

// scaleFactor returns the smallest sf with every sample magnitude below
// 2^(sf+1), capped at 15.
func scaleFactor(samples []float64, sb, m, blocks int) int {
	var peak float64
	for blk := 0; blk < blocks; blk++ {
		if v := math.Abs(samples[blk*m+sb]); v > peak {
			peak = v
		}
	}
	sf := 0
	for sf < 15 && peak >= float64(uint32(2)<<uint(sf)) {
		sf++
	}
	return sf
}

// joinStereo switches each subband except the last to mid/side coding when
// that lowers the scale factor total. The returned mask has the first
// subband in its most significant bit.
func joinStereo(samples *[2][]float64, scaleFactors *[2][8]int, m, blocks int) uint8 {
	var join uint8
	mid := make([]float64, blocks*m)
	side := make([]float64, blocks*m)
	for sb := 0; sb < m-1; sb++ {
		for blk := 0; blk < blocks; blk++ {
			l := samples[0][blk*m+sb]
			r := samples[1][blk*m+sb]
			mid[blk*m+sb] = (l + r) / 2
			side[blk*m+sb] = (l - r) / 2
		}
		sfMid := scaleFactor(mid, sb, m, blocks)
		sfSide := scaleFactor(side, sb, m, blocks)
		if sfMid+sfSide >= scaleFactors[0][sb]+scaleFactors[1][sb] {
			continue
		}
		join |= 1 << uint(m-1-sb)
		scaleFactors[0][sb] = sfMid
		scaleFactors[1][sb] = sfSide
		for blk := 0; blk < blocks; blk++ {
			samples[0][blk*m+sb] = mid[blk*m+sb]
			samples[1][blk*m+sb] = side[blk*m+sb]
		}
	}
	return join
}

func quantize(sample float64, sf, bits int) uint32 {
	levels := float64(uint32(1)<<uint(bits) - 1)
	scale := float64(uint32(2) << uint(sf))
	q := math.Floor((sample/scale + 1) * levels / 2)
	if q < 0 {
		q = 0
	}
	if q > levels {
		q = levels
	}
	return uint32(q)
}
