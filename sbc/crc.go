package sbc

// crc8 accumulates the SBC header checksum (polynomial x^8+x^4+x^3+x^2+1,
// initial value 0x0F) one bit at a time, since the protected fields are not
// byte aligned.
type crc8 struct {
	value uint8
}

func newCRC8() *crc8 {
	return &crc8{value: 0x0F}
}

func (c *crc8) writeBits(v uint64, n uint8) {
	for i := int(n) - 1; i >= 0; i-- {
		bit := uint8(v>>uint(i)) & 1
		top := c.value >> 7
		c.value <<= 1
		if top^bit != 0 {
			c.value ^= 0x1D
		}
	}
}

func (c *crc8) sum() uint8 {
	return c.value
}
