package ntlm

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType1Layout(t *testing.T) {
	flags := DefaultFlags("corp", "ws1", false, true, false)
	msg := Type1(flags, "corp", "ws1")

	require.GreaterOrEqual(t, len(msg), 32)
	assert.Equal(t, []byte("NTLMSSP\x00"), msg[:8])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(msg[8:]))
	assert.Equal(t, flags, binary.LittleEndian.Uint32(msg[12:]))

	domainSB := readSecurityBuffer(msg[16:])
	domain, err := domainSB.extract(msg)
	require.NoError(t, err)
	assert.Equal(t, "CORP", string(domain))

	wsSB := readSecurityBuffer(msg[24:])
	ws, err := wsSB.extract(msg)
	require.NoError(t, err)
	assert.Equal(t, "WS1", string(ws))
}

func TestType1EmptyFields(t *testing.T) {
	msg := Type1(DefaultFlags("", "", false, true, false), "", "")
	assert.Len(t, msg, 32)
}

// buildType2 assembles a server challenge message for the parser tests.
func buildType2(flags uint32, challenge, targetInfo []byte) []byte {
	msg := make([]byte, 48)
	copy(msg, "NTLMSSP\x00")
	binary.LittleEndian.PutUint32(msg[8:], 2)
	binary.LittleEndian.PutUint32(msg[20:], flags)
	copy(msg[24:32], challenge)
	if len(targetInfo) > 0 {
		putSecurityBuffer(msg[40:], securityBuffer{
			Len:    uint16(len(targetInfo)),
			MaxLen: uint16(len(targetInfo)),
			Offset: 48,
		})
		msg = append(msg, targetInfo...)
	}
	return msg
}

func TestParseType2(t *testing.T) {
	challenge := mustHex("0123456789abcdef")
	info := []byte{0x02, 0x00, 0x02, 0x00, 'D', 0x00}

	ch, err := ParseType2(buildType2(NegotiateUnicode|NegotiateTargetInfo, challenge, info))
	require.NoError(t, err)
	assert.Equal(t, challenge, ch.Challenge)
	assert.Equal(t, info, ch.TargetInfo)
	assert.True(t, FlagSet(ch.Flags, NegotiateUnicode))
}

func TestParseType2NoTargetInfo(t *testing.T) {
	ch, err := ParseType2(buildType2(NegotiateUnicode, mustHex("0123456789abcdef"), nil))
	require.NoError(t, err)
	assert.Empty(t, ch.TargetInfo)
}

func TestParseType2Errors(t *testing.T) {
	tests := []struct {
		name string
		msg  []byte
		want error
	}{
		{"short", []byte("NTLMSSP\x00\x02"), ErrShortMessage},
		{"truncated header", buildType2(0, make([]byte, 8), nil)[:20], ErrShortMessage},
		{"wrong magic", append([]byte("NTLMSSX\x00"), make([]byte, 40)...), ErrBadSignature},
		{"wrong type", Type1(0, "", ""), ErrBadMessageType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseType2(tt.msg)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseType2 error = %v; want %v", err, tt.want)
			}
		})
	}
}

func TestParseType2TruncatedTargetInfo(t *testing.T) {
	msg := buildType2(NegotiateTargetInfo, make([]byte, 8), []byte{1, 2, 3, 4})
	msg = msg[:len(msg)-2]
	_, err := ParseType2(msg)
	assert.ErrorIs(t, err, ErrShortMessage)
}

func TestType3RoundTrip(t *testing.T) {
	lm := make([]byte, ResponseLen)
	nt := mustHex("25a98c1c31e81847466b29b2df4680f39958fb8c213a9cc6")
	msg := Type3(NegotiateUnicode|NegotiateNTLM, lm, nt, "Domain", "User", "WS")

	require.GreaterOrEqual(t, len(msg), type3HeaderLen)
	assert.Equal(t, []byte("NTLMSSP\x00"), msg[:8])
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(msg[8:]))

	gotLM, err := readSecurityBuffer(msg[12:]).extract(msg)
	require.NoError(t, err)
	assert.Equal(t, lm, gotLM)

	gotNT, err := readSecurityBuffer(msg[20:]).extract(msg)
	require.NoError(t, err)
	assert.Equal(t, nt, gotNT)

	user, err := readSecurityBuffer(msg[36:]).extract(msg)
	require.NoError(t, err)
	assert.Equal(t, UTF16FromString("User"), user)

	key := readSecurityBuffer(msg[52:])
	assert.Zero(t, key.Len)
}

func TestType3OEMEncoding(t *testing.T) {
	msg := Type3(NegotiateOEM, nil, nil, "dom", "user", "")
	user, err := readSecurityBuffer(msg[36:]).extract(msg)
	require.NoError(t, err)
	assert.Equal(t, "USER", string(user))
}
