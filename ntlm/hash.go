// Package ntlm implements the NTLMSSP wire messages and the LM, NT,
// NTLMv2 and NTLM2 session-response credential derivations needed to
// authenticate against an NTLM-challenging proxy.
//
// The package is deliberately self-contained: callers hand it
// credentials and the server's Type-2 challenge and get back the bytes
// of the Type-1 and Type-3 messages. Nothing here performs I/O.
package ntlm

import (
	"crypto/des"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"golang.org/x/crypto/md4"
)

// Hash widths. Response keys are zero-padded to 21 bytes before being
// split into DES keys.
const (
	HashLen        = 16
	ResponseKeyLen = 21
	ResponseLen    = 24
	ChallengeLen   = 8
	NonceLen       = 8
)

// lmMagic is the constant plaintext each LM DES half encrypts.
var lmMagic = []byte("KGS!@#$%")

// UTF16FromString encodes s as little-endian UTF-16 without a BOM.
func UTF16FromString(s string) []byte {
	codes := utf16.Encode([]rune(s))
	b := make([]byte, 2*len(codes))
	for i, c := range codes {
		binary.LittleEndian.PutUint16(b[2*i:], c)
	}
	return b
}

// expandDESKey spreads a 7-byte key over 8 bytes, inserting the DES
// parity bit positions.
func expandDESKey(key7 []byte) []byte {
	key := make([]byte, 8)
	key[0] = key7[0]
	key[1] = key7[0]<<7 | key7[1]>>1
	key[2] = key7[1]<<6 | key7[2]>>2
	key[3] = key7[2]<<5 | key7[3]>>3
	key[4] = key7[3]<<4 | key7[4]>>4
	key[5] = key7[4]<<3 | key7[5]>>5
	key[6] = key7[5]<<2 | key7[6]>>6
	key[7] = key7[6] << 1
	return key
}

func desEncrypt(key7, src []byte) []byte {
	cipher, err := des.NewCipher(expandDESKey(key7))
	if err != nil {
		// Key size is fixed at 8 by construction.
		panic(err)
	}
	dst := make([]byte, 8)
	cipher.Encrypt(dst, src)
	return dst
}

// LMHash derives the 16-byte LanManager hash: the password is
// upper-cased, padded or truncated to 14 bytes, and each 7-byte half
// DES-encrypts the magic constant.
func LMHash(password string) []byte {
	padded := make([]byte, 14)
	copy(padded, strings.ToUpper(password))
	out := make([]byte, 0, HashLen)
	out = append(out, desEncrypt(padded[0:7], lmMagic)...)
	out = append(out, desEncrypt(padded[7:14], lmMagic)...)
	return out
}

// NTHash derives the 16-byte NT hash: MD4 over the little-endian
// UTF-16 password.
func NTHash(password string) []byte {
	h := md4.New()
	h.Write(UTF16FromString(password))
	return h.Sum(nil)
}

// LMResponse computes the classic 24-byte challenge response: the
// 16-byte hash is zero-padded to 21 bytes, split into three 7-byte DES
// keys, and each key encrypts the 8-byte server challenge. The same
// construction serves both the LM and the NT response.
func LMResponse(hash, challenge []byte) []byte {
	key := make([]byte, ResponseKeyLen)
	copy(key, hash)
	out := make([]byte, 0, ResponseLen)
	out = append(out, desEncrypt(key[0:7], challenge)...)
	out = append(out, desEncrypt(key[7:14], challenge)...)
	out = append(out, desEncrypt(key[14:21], challenge)...)
	return out
}

// NTLM2SessionHash derives the effective challenge for the NTLM2
// session-response scheme: the first 8 bytes of MD5 over server
// challenge followed by client nonce.
func NTLM2SessionHash(challenge, nonce []byte) []byte {
	h := md5.New()
	h.Write(challenge)
	h.Write(nonce)
	return h.Sum(nil)[:ChallengeLen]
}

// NTLM2SessionResponse computes the LM and NT slots for the NTLM2
// session-response scheme. The LM slot carries the client nonce padded
// with zeros; the NT slot is the regular NT response computed over the
// session hash instead of the raw challenge.
func NTLM2SessionResponse(ntHash, challenge, nonce []byte) (lm, nt []byte) {
	lm = make([]byte, ResponseLen)
	copy(lm, nonce)
	nt = LMResponse(ntHash, NTLM2SessionHash(challenge, nonce))
	return lm, nt
}

// NTLMv2Hash derives the NTLMv2 response key: HMAC-MD5 keyed with the
// NT hash over the UTF-16 concatenation of the upper-cased user name
// and the domain (domain case preserved).
func NTLMv2Hash(ntHash []byte, user, domain string) []byte {
	mac := hmac.New(md5.New, ntHash)
	mac.Write(UTF16FromString(strings.ToUpper(user) + domain))
	return mac.Sum(nil)
}

// hmacMD5 is HMAC-MD5 of the concatenation of parts under key.
func hmacMD5(key []byte, parts ...[]byte) []byte {
	mac := hmac.New(md5.New, key)
	for _, p := range parts {
		mac.Write(p)
	}
	return mac.Sum(nil)
}

// NTLMv2Blob assembles the variable-length structure appended to the
// NTLMv2 proof: version header, Windows FILETIME timestamp, client
// nonce, reserved word, the server's target-info block and a zero
// trailer.
func NTLMv2Blob(timestamp uint64, nonce, targetInfo []byte) []byte {
	blob := make([]byte, 0, 28+len(targetInfo)+4)
	blob = append(blob, 0x01, 0x01, 0x00, 0x00) // blob signature
	blob = append(blob, 0x00, 0x00, 0x00, 0x00) // reserved
	var ts [8]byte
	binary.LittleEndian.PutUint64(ts[:], timestamp)
	blob = append(blob, ts[:]...)
	blob = append(blob, nonce...)
	blob = append(blob, 0x00, 0x00, 0x00, 0x00) // unknown, always zero
	blob = append(blob, targetInfo...)
	blob = append(blob, 0x00, 0x00, 0x00, 0x00)
	return blob
}

// NTLMv2Response computes the NT slot for NTLMv2: the 16-byte
// HMAC-MD5 proof over server challenge and blob, followed by the blob
// itself.
func NTLMv2Response(v2Hash, challenge []byte, timestamp uint64, nonce, targetInfo []byte) []byte {
	blob := NTLMv2Blob(timestamp, nonce, targetInfo)
	proof := hmacMD5(v2Hash, challenge, blob)
	return append(proof, blob...)
}

// LMv2Response computes the LM slot for NTLMv2: HMAC-MD5 over server
// challenge and client nonce, followed by the nonce.
func LMv2Response(v2Hash, challenge, nonce []byte) []byte {
	return append(hmacMD5(v2Hash, challenge, nonce), nonce...)
}

// FileTime converts a Unix timestamp in seconds to Windows FILETIME
// (100 ns intervals since 1601-01-01).
func FileTime(unixSeconds int64) uint64 {
	return (uint64(unixSeconds) + 11644473600) * 10000000
}

// Nonce fills an 8-byte client nonce from the system CSPRNG.
func Nonce() ([]byte, error) {
	nonce := make([]byte, NonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}
