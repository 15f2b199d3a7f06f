package persistence

import "hash/crc32"

// CRC32 (IEEE) is used for integrity verification: fast, hardware
// accelerated on modern CPUs, and good at detecting storage corruption.
// It is not cryptographically secure and detects accidents, not tampering.

// Checksum calculates the CRC32 checksum of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ChecksumCont continues a running CRC32 over additional data, allowing
// one checksum to span multiple blocks.
func ChecksumCont(sum uint32, data []byte) uint32 {
	return crc32.Update(sum, crc32.IEEETable, data)
}
