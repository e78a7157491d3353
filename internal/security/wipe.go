package security

import "crypto/rand"

// WipeBytes overwrites secret material in place: a password, a passphrase
// or the contents of a private key file.
func WipeBytes(data []byte) {
	_, _ = rand.Read(data)
	clear(data)
}
