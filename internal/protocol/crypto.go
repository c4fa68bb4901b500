package protocol

import (
	"crypto/aes"
	"fmt"
)

// KeySize is the size of the group encryption key (AES-128)
const KeySize = 16

// frameKey mixes the group id and frame nonce into the group key so that
// two frames with different nonces never share a keystream.
func frameKey(key [KeySize]byte, groupID, nonce uint16) [KeySize]byte {
	mix := uint32(groupID)<<16 | uint32(nonce)

	var out [KeySize]byte
	for i := range out {
		out[i] = key[i] ^ byte(mix>>(4*(i/4)))
	}
	return out
}

// applyKeystream XORs data in place with an AES-CTR style keystream built
// from LoRaMAC A-blocks: A[0]=0x01, A[15]=block counter starting at 1, the
// rest zero. The operation is its own inverse.
func applyKeystream(key [KeySize]byte, data []byte) error {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return fmt.Errorf("failed to create AES cipher: %w", err)
	}

	var a, s [aes.BlockSize]byte
	a[0] = 0x01

	for off, ctr := 0, 1; off < len(data); off, ctr = off+aes.BlockSize, ctr+1 {
		a[15] = byte(ctr)
		block.Encrypt(s[:], a[:])

		end := off + aes.BlockSize
		if end > len(data) {
			end = len(data)
		}
		for i := off; i < end; i++ {
			data[i] ^= s[i-off]
		}
	}
	return nil
}
