package rfb

import (
	"crypto/des" //nolint:staticcheck // RFB's VNC authentication scheme mandates DES-ECB.
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// ChallengeSize is the length in bytes of a VNC authentication challenge.
const ChallengeSize = 16

// NewChallenge generates a 16-byte cryptographically random challenge.
func NewChallenge() ([ChallengeSize]byte, error) {
	var challenge [ChallengeSize]byte
	if _, err := rand.Read(challenge[:]); err != nil {
		return challenge, fmt.Errorf("rfb: generating challenge: %w", err)
	}
	return challenge, nil
}

// desKeyFromPassword prepares the DES key for VNC authentication: the
// password is truncated (or zero-padded) to 8 bytes, then every byte has
// its bit order reversed (bit 0 <-> bit 7). This is the historical VNC
// quirk and must be preserved for interoperability with real clients.
func desKeyFromPassword(password string) [8]byte {
	var key [8]byte
	copy(key[:], password) // copy truncates to len(key) if password is longer
	for i, b := range key {
		key[i] = reverseBits(b)
	}
	return key
}

func reverseBits(b byte) byte {
	var out byte
	for i := 0; i < 8; i++ {
		out <<= 1
		out |= b & 1
		b >>= 1
	}
	return out
}

// encryptChallenge encrypts the 16-byte challenge as two independent
// 8-byte DES-ECB blocks under the given key, matching how a real VNC
// client computes its response.
func encryptChallenge(challenge [ChallengeSize]byte, key [8]byte) ([ChallengeSize]byte, error) {
	var out [ChallengeSize]byte
	block, err := des.NewCipher(key[:])
	if err != nil {
		return out, fmt.Errorf("rfb: building DES cipher: %w", err)
	}
	block.Encrypt(out[0:8], challenge[0:8])
	block.Encrypt(out[8:16], challenge[8:16])
	return out, nil
}

// EncryptChallengeResponse computes the expected client response to
// challenge for the given password, exactly as a conforming VNC client
// would. Exported so both the server (to verify) and tests/demo clients
// can compute it.
func EncryptChallengeResponse(challenge [ChallengeSize]byte, password string) ([ChallengeSize]byte, error) {
	return encryptChallenge(challenge, desKeyFromPassword(password))
}

// VerifyResponse recomputes the expected ciphertext from challenge and
// password and compares it against the client's response in constant
// time.
func VerifyResponse(challenge [ChallengeSize]byte, response [ChallengeSize]byte, password string) (bool, error) {
	expected, err := EncryptChallengeResponse(challenge, password)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(expected[:], response[:]) == 1, nil
}
