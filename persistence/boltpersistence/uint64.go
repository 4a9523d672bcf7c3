package boltpersistence

import "encoding/binary"

// marshalUint64 marshals a uint64 to its binary representation.
func marshalUint64(n uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, n)
	return data
}

// unmarshalUint64 unmarshals a uint64 from its binary representation.
//
// It returns zero if data is empty.
func unmarshalUint64(data []byte) uint64 {
	if len(data) == 0 {
		return 0
	}

	return binary.BigEndian.Uint64(data)
}
