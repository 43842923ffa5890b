// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pus

var crcTable = makeCRCTable(crcPolynomial)

func makeCRCTable(poly uint16) *[256]uint16 {
	var t [256]uint16
	for i := range t {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

// CalculateCRC computes the CRC-16/CCITT-FALSE packet error control field
func CalculateCRC(data []byte) uint16 {
	return updateCRC(crcInitial, data)
}

// updateCRC continues a CRC over data, one table lookup per byte
func updateCRC(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
