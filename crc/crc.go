// CRC8 poly 0x93, the checksum the pin-sampler board firmware speaks.
package crc

const Poly93 byte = 0x93

func CRC8_p93(crc, data byte) byte {
	crc ^= data
	for i := 0; i < 8; i++ {
		if crc&0x80 != 0 {
			crc = (crc << 1) ^ Poly93
		} else {
			crc <<= 1
		}
	}
	return crc
}

func CRC8_p93_n(crc byte, bs []byte) byte {
	for _, b := range bs {
		crc = CRC8_p93(crc, b)
	}
	return crc
}
