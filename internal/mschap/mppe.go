package mschap

import "crypto/sha1"

// RFC 3079 section 3.4 derivation constants.
var (
	mppeMagic1 = []byte("This is the MPPE Master Key")
	mppeMagic2 = []byte("On the client side, this is the send key; on the server side, it is the receive key.")
	mppeMagic3 = []byte("On the client side, this is the receive key; on the server side, it is the send key.")
)

// MasterKey derives the 16-byte MPPE master key from the hashed NT hash and
// the NT response (RFC 3079 section 3.4).
func MasterKey(passwordHashHash, ntResponse []byte) []byte {
	h := sha1.New()
	h.Write(passwordHashHash)
	h.Write(ntResponse)
	h.Write(mppeMagic1)
	return h.Sum(nil)[:16]
}

// MPPEKeys returns the server-side 128-bit send and receive session keys
// for an authenticated MS-CHAPv2 exchange. passwordHash is the stored NT
// hash, not the cleartext password.
func MPPEKeys(passwordHash, ntResponse []byte) (sendKey, recvKey []byte) {
	master := MasterKey(HashNtPasswordHash(passwordHash), ntResponse)
	// The server's send key is the client's receive key and vice versa.
	sendKey = asymmetricStartKey(master, mppeMagic3)
	recvKey = asymmetricStartKey(master, mppeMagic2)
	return sendKey, recvKey
}

// asymmetricStartKey is GetAsymmetricStartKey from RFC 3079 section 3.4,
// fixed at a 16-byte session key length.
func asymmetricStartKey(masterKey, magic []byte) []byte {
	pad1 := make([]byte, 40) // SHSpad1, 40 zeros
	pad2 := make([]byte, 40) // SHSpad2, 40 bytes of 0xF2
	for i := range pad2 {
		pad2[i] = 0xF2
	}

	h := sha1.New()
	h.Write(masterKey)
	h.Write(pad1)
	h.Write(magic)
	h.Write(pad2)
	return h.Sum(nil)[:16]
}
