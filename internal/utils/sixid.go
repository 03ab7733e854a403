package utils

import (
	"crypto/rand"
)

// SixIDHookFunc lets tests override NewSixID. When override is false the
// random generator is used.
type SixIDHookFunc func() (id SixID, override bool)

// NewSixIDHook is set by tests to control generated ids.
var NewSixIDHook SixIDHookFunc

// SixID is a 6-byte random id rendered as 10 Crockford base32 characters.
// Enquiry references use it because it is short enough to read over the phone.
type SixID [6]byte

// NewSixID returns a random SixID.
func NewSixID() SixID {
	if NewSixIDHook != nil {
		if id, override := NewSixIDHook(); override {
			return id
		}
	}
	var id SixID
	if _, err := rand.Read(id[:]); err != nil {
		return SixID{}
	}
	return id
}

const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// String returns the base32 form, e.g. "4K0Z9P2M7Q".
func (u SixID) String() string {
	result := make([]byte, 0, 10)
	var bits, offset uint
	for i := 0; i < len(u); i++ {
		bits |= uint(u[i]) << offset
		offset += 8
		for offset >= 5 {
			result = append(result, crockfordAlphabet[bits&0x1F])
			bits >>= 5
			offset -= 5
		}
	}
	if offset > 0 {
		result = append(result, crockfordAlphabet[bits&0x1F])
	}
	return string(result)
}
