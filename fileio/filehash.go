package fileio

import "hash/crc32"

// ChecksumCRC32 returns the IEEE CRC32 of data
func ChecksumCRC32(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
