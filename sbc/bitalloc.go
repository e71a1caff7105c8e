package sbc

var loudnessOffset4 = [4][4]int{
	{-1, 0, 0, 0},
	{-2, 0, 0, 1},
	{-2, 0, 0, 1},
	{-2, 0, 0, 1},
}

var loudnessOffset8 = [4][8]int{
	{-2, 0, 0, 0, 0, 0, 0, 1},
	{-3, 0, 0, 0, 0, 0, 1, 2},
	{-4, 0, 0, 0, 0, 0, 1, 2},
	{-4, 0, 0, 0, 0, 0, 1, 2},
}

func loudnessOffset(freq Frequency, subbands, sb int) int {
	if subbands == 4 {
		return loudnessOffset4[freq][sb]
	}
	return loudnessOffset8[freq][sb]
}

// allocateBits distributes the bitpool over subbands. Mono and dual channel
// allocate each channel on its own; stereo and joint stereo share the pool
// across both channels.
func allocateBits(p Params, scaleFactors *[2][8]int, bits *[2][8]int) {
	switch p.Mode {
	case ModeMono, ModeDualChannel:
		for ch := 0; ch < p.Channels(); ch++ {
			allocate(p, scaleFactors, bits, []int{ch})
		}
	default:
		allocate(p, scaleFactors, bits, []int{0, 1})
	}
}

func allocate(p Params, scaleFactors *[2][8]int, bits *[2][8]int, channels []int) {
	m := p.Subbands
	bitpool := int(p.Bitpool)

	var bitneed [2][8]int
	maxBitneed := 0
	minBitneed := 0
	for _, ch := range channels {
		for sb := 0; sb < m; sb++ {
			sf := scaleFactors[ch][sb]
			need := sf
			if p.Allocation != AllocationSNR {
				if sf == 0 {
					need = -5
				} else {
					need = sf - loudnessOffset(p.Frequency, m, sb)
					if need > 0 {
						need /= 2
					}
				}
			}
			bitneed[ch][sb] = need
			if need > maxBitneed {
				maxBitneed = need
			}
			if need < minBitneed {
				minBitneed = need
			}
		}
	}

	bitcount := 0
	slicecount := 0
	bitslice := maxBitneed + 1
	for {
		bitslice--
		bitcount += slicecount
		slicecount = 0
		for _, ch := range channels {
			for sb := 0; sb < m; sb++ {
				need := bitneed[ch][sb]
				if need > bitslice+1 && need < bitslice+16 {
					slicecount++
				} else if need == bitslice+1 {
					slicecount += 2
				}
			}
		}
		if bitcount+slicecount >= bitpool {
			break
		}
		// every subband is saturated at 16 bits
		if slicecount == 0 && bitslice < minBitneed-16 {
			break
		}
	}
	if bitcount+slicecount == bitpool {
		bitcount += slicecount
		bitslice--
	}

	for _, ch := range channels {
		for sb := 0; sb < m; sb++ {
			need := bitneed[ch][sb]
			if need < bitslice+2 {
				bits[ch][sb] = 0
			} else {
				b := need - bitslice
				if b > 16 {
					b = 16
				}
				bits[ch][sb] = b
			}
		}
	}

	// hand out the remaining bits in subband order, interleaving channels
	for sb := 0; sb < m && bitcount < bitpool; sb++ {
		for _, ch := range channels {
			if bitcount >= bitpool {
				break
			}
			if bits[ch][sb] >= 2 && bits[ch][sb] < 16 {
				bits[ch][sb]++
				bitcount++
			} else if bitneed[ch][sb] == bitslice+1 && bitpool > bitcount+1 {
				bits[ch][sb] = 2
				bitcount += 2
			}
		}
	}
	for sb := 0; sb < m && bitcount < bitpool; sb++ {
		for _, ch := range channels {
			if bitcount >= bitpool {
				break
			}
			if bits[ch][sb] < 16 {
				bits[ch][sb]++
				bitcount++
			}
		}
	}
}
