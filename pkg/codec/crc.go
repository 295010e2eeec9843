package codec

import "hash/crc32"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C returns the Castagnoli CRC32 of data. The stdlib table is
// hardware accelerated on amd64 and arm64.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, castagnoli)
}
