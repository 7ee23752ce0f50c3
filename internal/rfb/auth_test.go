package rfb

import (
	"bytes"
	"testing"
)

func TestDesKeyFromPasswordBitReversalPerByte(t *testing.T) {
	// Each byte of "pass\0\0\0\0" is bit-reversed independently (bit 0 <-> bit 7),
	// padding with nulls after truncation/padding to 8 bytes.
	key := desKeyFromPassword("pass")
	want := [8]byte{
		reverseBits('p'), reverseBits('a'), reverseBits('s'), reverseBits('s'),
		0x00, 0x00, 0x00, 0x00,
	}
	if key != want {
		t.Fatalf("got %x, want %x", key, want)
	}
}

func TestDesKeyTruncatesLongPasswords(t *testing.T) {
	key := desKeyFromPassword("abcdefghijklmnop")
	keyShort := desKeyFromPassword("abcdefgh")
	if key != keyShort {
		t.Fatalf("expected truncation to first 8 bytes before bit reversal")
	}
}

func TestVerifyResponseSuccess(t *testing.T) {
	var challenge [ChallengeSize]byte // all zero
	response, err := EncryptChallengeResponse(challenge, "pass")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyResponse(challenge, response, "pass")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected verification to succeed")
	}
}

func TestVerifyResponseWrongPasswordFails(t *testing.T) {
	var challenge [ChallengeSize]byte
	response, err := EncryptChallengeResponse(challenge, "pass")
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifyResponse(challenge, response, "wrong")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected verification to fail for wrong password")
	}
}

func TestNewChallengeIsRandomAndRightLength(t *testing.T) {
	a, err := NewChallenge()
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != ChallengeSize {
		t.Fatalf("len = %d, want %d", len(a), ChallengeSize)
	}
	if bytes.Equal(a[:], b[:]) {
		t.Fatal("two challenges collided, randomness broken")
	}
}

func TestReverseBits(t *testing.T) {
	cases := map[byte]byte{
		0x00: 0x00,
		0xFF: 0xFF,
		0x01: 0x80,
		0x80: 0x01,
		0x16: 0x68,
	}
	for in, want := range cases {
		if got := reverseBits(in); got != want {
			t.Fatalf("reverseBits(%02x) = %02x, want %02x", in, got, want)
		}
	}
}
