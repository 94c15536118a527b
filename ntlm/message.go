package ntlm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Wire framing errors. Callers classify with errors.Is.
var (
	// ErrShortMessage is returned when a message is truncated below its
	// fixed header or a security buffer points past the end.
	ErrShortMessage = errors.New("ntlm: message truncated")

	// ErrBadSignature is returned when the NTLMSSP magic is absent.
	ErrBadSignature = errors.New("ntlm: bad signature")

	// ErrBadMessageType is returned when the message type field does not
	// match the expected type.
	ErrBadMessageType = errors.New("ntlm: unexpected message type")
)

var signature = []byte("NTLMSSP\x00")

const (
	type1HeaderLen = 32
	type2HeaderLen = 32
	type3HeaderLen = 64
)

// securityBuffer is the 8-byte length/maxlength/offset descriptor used
// by all NTLMSSP payload fields.
type securityBuffer struct {
	Len    uint16
	MaxLen uint16
	Offset uint32
}

func putSecurityBuffer(dst []byte, sb securityBuffer) {
	binary.LittleEndian.PutUint16(dst[0:], sb.Len)
	binary.LittleEndian.PutUint16(dst[2:], sb.MaxLen)
	binary.LittleEndian.PutUint32(dst[4:], sb.Offset)
}

func readSecurityBuffer(src []byte) securityBuffer {
	return securityBuffer{
		Len:    binary.LittleEndian.Uint16(src[0:]),
		MaxLen: binary.LittleEndian.Uint16(src[2:]),
		Offset: binary.LittleEndian.Uint32(src[4:]),
	}
}

// extract returns the payload bytes a security buffer points at.
func (sb securityBuffer) extract(msg []byte) ([]byte, error) {
	if sb.Len == 0 {
		return nil, nil
	}
	end := int(sb.Offset) + int(sb.Len)
	if end > len(msg) {
		return nil, fmt.Errorf("%w: buffer at %d+%d exceeds %d bytes", ErrShortMessage, sb.Offset, sb.Len, len(msg))
	}
	return msg[sb.Offset:end], nil
}

// payloadWriter accumulates the variable part of a message while
// recording security buffers against a fixed header length.
type payloadWriter struct {
	buf     bytes.Buffer
	baseLen int
}

func (w *payloadWriter) add(data []byte) securityBuffer {
	sb := securityBuffer{
		Len:    uint16(len(data)),
		MaxLen: uint16(len(data)),
		Offset: uint32(w.baseLen + w.buf.Len()),
	}
	w.buf.Write(data)
	return sb
}

// Type1 builds the negotiate message. Domain and workstation ride in
// OEM encoding (upper-cased), matching what the supplied-field flags
// promise; either may be empty.
func Type1(flags uint32, domain, workstation string) []byte {
	w := payloadWriter{baseLen: type1HeaderLen}
	domainSB := w.add([]byte(oemUpper(domain)))
	wsSB := w.add([]byte(oemUpper(workstation)))

	msg := make([]byte, type1HeaderLen, type1HeaderLen+w.buf.Len())
	copy(msg, signature)
	binary.LittleEndian.PutUint32(msg[8:], 1)
	binary.LittleEndian.PutUint32(msg[12:], flags)
	putSecurityBuffer(msg[16:], domainSB)
	putSecurityBuffer(msg[24:], wsSB)
	return append(msg, w.buf.Bytes()...)
}

// Challenge is the parsed form of a Type-2 message.
type Challenge struct {
	// Flags are the server's negotiate flags; they govern the string
	// encoding of every subsequent field.
	Flags uint32

	// Challenge is the 8-byte server nonce.
	Challenge []byte

	// TargetName is the raw target-name payload.
	TargetName []byte

	// TargetInfo is the raw AV-pair block, empty when the server did not
	// negotiate target info. NTLMv2 responses embed it verbatim.
	TargetInfo []byte
}

// ParseType2 decodes a challenge message.
func ParseType2(msg []byte) (*Challenge, error) {
	if len(msg) < type2HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(msg))
	}
	if !bytes.Equal(msg[:8], signature) {
		return nil, ErrBadSignature
	}
	if typ := binary.LittleEndian.Uint32(msg[8:]); typ != 2 {
		return nil, fmt.Errorf("%w: got type %d, want 2", ErrBadMessageType, typ)
	}

	ch := &Challenge{
		Flags:     binary.LittleEndian.Uint32(msg[20:]),
		Challenge: append([]byte(nil), msg[24:32]...),
	}

	name, err := readSecurityBuffer(msg[12:]).extract(msg)
	if err != nil {
		return nil, err
	}
	ch.TargetName = name

	// The target-info descriptor only exists in the longer header form.
	if FlagSet(ch.Flags, NegotiateTargetInfo) && len(msg) >= 48 {
		info, err := readSecurityBuffer(msg[40:]).extract(msg)
		if err != nil {
			return nil, err
		}
		ch.TargetInfo = info
	}
	return ch, nil
}

// Type3 builds the authenticate message. The string fields are encoded
// per the server's negotiated flags: UTF-16 when unicode was agreed,
// OEM otherwise. The session-key slot is always present and empty; key
// exchange is not performed.
func Type3(flags uint32, lmResp, ntResp []byte, domain, user, workstation string) []byte {
	encode := func(s string) []byte {
		if FlagSet(flags, NegotiateUnicode) {
			return UTF16FromString(s)
		}
		return []byte(oemUpper(s))
	}

	w := payloadWriter{baseLen: type3HeaderLen}
	lmSB := w.add(lmResp)
	ntSB := w.add(ntResp)
	domainSB := w.add(encode(domain))
	userSB := w.add(encode(user))
	wsSB := w.add(encode(workstation))
	keySB := w.add(nil)

	msg := make([]byte, type3HeaderLen, type3HeaderLen+w.buf.Len())
	copy(msg, signature)
	binary.LittleEndian.PutUint32(msg[8:], 3)
	putSecurityBuffer(msg[12:], lmSB)
	putSecurityBuffer(msg[20:], ntSB)
	putSecurityBuffer(msg[28:], domainSB)
	putSecurityBuffer(msg[36:], userSB)
	putSecurityBuffer(msg[44:], wsSB)
	putSecurityBuffer(msg[52:], keySB)
	binary.LittleEndian.PutUint32(msg[60:], flags)
	return append(msg, w.buf.Bytes()...)
}

func oemUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
