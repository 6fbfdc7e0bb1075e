package layerfile

import "hash/crc32"

// castagnoliTable is used over IEEE because it's accelerated on
// modern hardware via SSE4.2/ARMv8 CRC instructions.
var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

func CalculateCRC32(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

func ValidateCRC32(data []byte, expected uint32) bool {
	return CalculateCRC32(data) == expected
}
