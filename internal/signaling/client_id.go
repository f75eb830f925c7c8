package signaling

import "crypto/rand"

const (
	clientIDLength   = 9
	clientIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// newClientID returns a short opaque client identifier: 9 base-36 uppercase
// characters (~46 bits), plenty for uniqueness among the live clients of a
// single node. The Hub additionally checks the candidate against its registry
// before committing.
func newClientID() (string, error) {
	var buf [clientIDLength]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = clientIDAlphabet[int(b)%len(clientIDAlphabet)]
	}
	return string(buf[:]), nil
}
