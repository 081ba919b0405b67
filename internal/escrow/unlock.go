package escrow

import (
	"crypto/rand"
	"encoding/binary"
)

// NewUnlockCode generates the release secret issued at order creation. The
// code is drawn from a CSPRNG and is never zero, so a zero value can only
// mean "no code".
func NewUnlockCode() (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		if code := binary.BigEndian.Uint64(buf[:]); code != 0 {
			return code, nil
		}
	}
}
