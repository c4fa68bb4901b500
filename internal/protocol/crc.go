package protocol

// CRCType selects the polynomial and seed used by ComputeCRC
type CRCType int

// Supported CRC variants
const (
	CRCCCITT CRCType = iota // x^16+x^12+x^5+1, XMODEM seed, not inverted
	CRCIBM                  // x^16+x^15+x^2+1, seed 0xFFFF, inverted
)

const (
	polynomialCCITT uint16 = 0x1021
	polynomialIBM   uint16 = 0x8005

	seedCCITT uint16 = 0x0000
	seedIBM   uint16 = 0xFFFF
)

// crcUpdate folds one byte into crc, MSB first
func crcUpdate(crc uint16, data byte, poly uint16) uint16 {
	for i := 0; i < 8; i++ {
		if (crc&0x8000)>>8^uint16(data&0x80) != 0 {
			crc = crc<<1 ^ poly
		} else {
			crc <<= 1
		}
		data <<= 1
	}
	return crc
}

// ComputeCRC returns the 16-bit CRC of data for the given variant.
// Frames are protected with CRCIBM.
func ComputeCRC(data []byte, typ CRCType) uint16 {
	poly, crc := polynomialIBM, seedIBM
	if typ == CRCCCITT {
		poly, crc = polynomialCCITT, seedCCITT
	}

	for _, b := range data {
		crc = crcUpdate(crc, b, poly)
	}

	if typ == CRCIBM {
		return ^crc
	}
	return crc
}
