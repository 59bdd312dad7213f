// Package mschap implements the MS-CHAPv2 challenge/response primitives
// (RFC 2759) and MPPE session key derivation (RFC 3079). All functions are
// pure; callers supply the stored NT hash so nothing here touches storage.
package mschap

import (
	"crypto/des"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// Magic constants from RFC 2759 section 8.7.
var (
	magic1 = []byte("Magic server to client signing constant")
	magic2 = []byte("Pad to make it do more than one iteration")
)

// ChallengeHash produces the 8-byte challenge for the NT response
// (RFC 2759 section 8.2).
func ChallengeHash(peerChallenge, authenticatorChallenge []byte, username string) []byte {
	h := sha1.New()
	h.Write(peerChallenge)
	h.Write(authenticatorChallenge)
	h.Write([]byte(username))
	return h.Sum(nil)[:8]
}

// NtPasswordHash is MD4 over the UTF-16LE encoding of the password
// (RFC 2759 section 8.3).
func NtPasswordHash(password string) []byte {
	u := utf16.Encode([]rune(password))
	buf := make([]byte, len(u)*2)
	for i, c := range u {
		binary.LittleEndian.PutUint16(buf[i*2:], c)
	}
	h := md4.New()
	h.Write(buf)
	return h.Sum(nil)
}

// HashNtPasswordHash is MD4 over the 16-byte NT hash (RFC 2759 section 8.4).
func HashNtPasswordHash(passwordHash []byte) []byte {
	h := md4.New()
	h.Write(passwordHash)
	return h.Sum(nil)
}

// GenerateNTResponse computes the 24-byte NT response for an MS-CHAPv2
// exchange (RFC 2759 section 8.1). passwordHash is the stored NT hash.
func GenerateNTResponse(authenticatorChallenge, peerChallenge []byte, username string, passwordHash []byte) ([]byte, error) {
	challenge := ChallengeHash(peerChallenge, authenticatorChallenge, username)
	return ChallengeResponse(challenge, passwordHash)
}

// ChallengeResponse zero-pads the 16-byte hash to 21 bytes, splits it into
// three 7-byte DES keys and encrypts the challenge with each
// (RFC 2759 section 8.5).
func ChallengeResponse(challenge, passwordHash []byte) ([]byte, error) {
	if len(challenge) != 8 {
		return nil, fmt.Errorf("mschap: challenge must be 8 bytes, got %d", len(challenge))
	}
	zhash := make([]byte, 21)
	copy(zhash, passwordHash)

	response := make([]byte, 0, 24)
	for i := 0; i < 21; i += 7 {
		block, err := desEncrypt(zhash[i:i+7], challenge)
		if err != nil {
			return nil, err
		}
		response = append(response, block...)
	}
	return response, nil
}

// GenerateAuthenticatorResponse builds the MS-CHAP2-Success payload:
// a fixed 0x01 ident byte followed by "S=" and the uppercase hex digest
// (RFC 2759 section 8.7).
func GenerateAuthenticatorResponse(passwordHash, ntResponse, peerChallenge, authenticatorChallenge []byte, username string) string {
	hashHash := HashNtPasswordHash(passwordHash)

	h := sha1.New()
	h.Write(hashHash)
	h.Write(ntResponse)
	h.Write(magic1)
	digest := h.Sum(nil)

	challenge := ChallengeHash(peerChallenge, authenticatorChallenge, username)

	h = sha1.New()
	h.Write(digest)
	h.Write(challenge)
	h.Write(magic2)
	digest = h.Sum(nil)

	return "\x01S=" + strings.ToUpper(fmt.Sprintf("%x", digest))
}

// desEncrypt expands a 7-byte key to 8 bytes with parity bits and
// ECB-encrypts one 8-byte block.
func desEncrypt(key7, src []byte) ([]byte, error) {
	cipher, err := des.NewCipher(addParity(key7))
	if err != nil {
		return nil, err
	}
	dst := make([]byte, 8)
	cipher.Encrypt(dst, src)
	return dst, nil
}

// addParity spreads 56 key bits over 8 bytes, low bit reserved for parity.
// crypto/des ignores the parity bit itself.
func addParity(key7 []byte) []byte {
	key := []byte{
		key7[0] >> 1,
		(key7[0]&0x01)<<6 | key7[1]>>2,
		(key7[1]&0x03)<<5 | key7[2]>>3,
		(key7[2]&0x07)<<4 | key7[3]>>4,
		(key7[3]&0x0F)<<3 | key7[4]>>5,
		(key7[4]&0x1F)<<2 | key7[5]>>6,
		(key7[5]&0x3F)<<1 | key7[6]>>7,
		key7[6] & 0x7F,
	}
	for i := range key {
		key[i] <<= 1
	}
	return key
}
