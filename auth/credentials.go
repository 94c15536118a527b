package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smnsjas/go-ntlmproxy/ntlm"
)

// Mode selects which response scheme the Type-3 message carries.
type Mode int

const (
	// ModeNTLM fills both the LM and NT slots (classic NTLMv1).
	ModeNTLM Mode = iota

	// ModeNT fills only the NT slot.
	ModeNT

	// ModeLM fills only the LM slot.
	ModeLM

	// ModeNTLMv2 sends the LMv2/NTv2 pair.
	ModeNTLMv2

	// ModeNTLM2SR sends the NTLM2 session response.
	ModeNTLM2SR

	// ModeGSS authenticates with a SPNEGO Kerberos token instead of
	// NTLM messages.
	ModeGSS
)

var modeNames = map[string]Mode{
	"ntlm":    ModeNTLM,
	"nt":      ModeNT,
	"lm":      ModeLM,
	"ntlmv2":  ModeNTLMv2,
	"ntlm2sr": ModeNTLM2SR,
	"gss":     ModeGSS,
}

// ErrUnknownMode is returned for an unrecognized auth-mode name.
var ErrUnknownMode = errors.New("auth: unknown authentication mode")

// ParseMode maps an operator-supplied mode name to a Mode.
func ParseMode(name string) (Mode, error) {
	m, ok := modeNames[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
	return m, nil
}

func (m Mode) String() string {
	for name, mode := range modeNames {
		if mode == m {
			return name
		}
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Credentials is the immutable credential block built once at startup
// and shared read-only across workers. The hash slots are either nil
// (absent) or exactly their declared width.
type Credentials struct {
	User        string
	Domain      string
	Workstation string

	Mode Mode

	// LM, NT and NTLMv2 are the derived hash slots. NTLMv2 holds the
	// HMAC-MD5 response key, which binds user and domain.
	LM     []byte
	NT     []byte
	NTLMv2 []byte

	// Flags is the Type-1 negotiate flags value: computed from the mode
	// and supplied fields unless the operator overrode it raw.
	Flags uint32

	// HasKerberos records whether a Kerberos client could be set up at
	// startup; the autodetect mode consults it.
	HasKerberos bool
}

// ParseUser splits "user@domain" and "domain\\user" forms. A domain
// embedded in the user name wins over an empty domain argument.
func ParseUser(user, domain string) (string, string) {
	if u, d, ok := strings.Cut(user, "@"); ok {
		return u, firstNonEmpty(domain, d)
	}
	if d, u, ok := strings.Cut(user, "\\"); ok {
		return u, firstNonEmpty(domain, d)
	}
	return user, domain
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// NewCredentials derives the hash slots the mode needs from password
// and zeroes the password buffer afterwards. Callers that hold hashes
// instead of a password pass nil and fill the slots with SetHashes.
func NewCredentials(mode Mode, user, domain, workstation string, password []byte, flagsOverride uint32) *Credentials {
	c := &Credentials{
		User:        user,
		Domain:      domain,
		Workstation: workstation,
		Mode:        mode,
	}
	if password != nil {
		pw := string(password)
		switch mode {
		case ModeLM:
			c.LM = ntlm.LMHash(pw)
		case ModeNT, ModeNTLM2SR:
			c.NT = ntlm.NTHash(pw)
		case ModeNTLMv2:
			c.NTLMv2 = ntlm.NTLMv2Hash(ntlm.NTHash(pw), user, domain)
		case ModeNTLM:
			c.LM = ntlm.LMHash(pw)
			c.NT = ntlm.NTHash(pw)
		}
		for i := range password {
			password[i] = 0
		}
	}
	c.Flags = flagsOverride
	if c.Flags == 0 {
		c.Flags = ntlm.DefaultFlags(domain, workstation, c.LM != nil, c.NT != nil, c.NTLMv2 != nil)
	}
	return c
}

// SetHashes installs pre-computed hashes from their hex forms. Empty
// strings leave the corresponding slot untouched.
func (c *Credentials) SetHashes(lmHex, ntHex, v2Hex string) error {
	for _, h := range []struct {
		name string
		hex  string
		slot *[]byte
	}{
		{"PassLM", lmHex, &c.LM},
		{"PassNT", ntHex, &c.NT},
		{"PassNTLMv2", v2Hex, &c.NTLMv2},
	} {
		if h.hex == "" {
			continue
		}
		b, err := decodeHash(h.name, h.hex)
		if err != nil {
			return err
		}
		*h.slot = b
	}
	return nil
}

func decodeHash(name, hexStr string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(hexStr))
	if err != nil {
		return nil, fmt.Errorf("auth: %s is not valid hex: %w", name, err)
	}
	if len(b) != ntlm.HashLen {
		return nil, fmt.Errorf("auth: %s must be %d bytes, got %d", name, ntlm.HashLen, len(b))
	}
	return b, nil
}

// Ready reports whether the slots required by the mode are populated.
func (c *Credentials) Ready() bool {
	switch c.Mode {
	case ModeLM:
		return c.LM != nil
	case ModeNT, ModeNTLM2SR:
		return c.NT != nil
	case ModeNTLMv2:
		return c.NTLMv2 != nil
	case ModeNTLM:
		return c.LM != nil && c.NT != nil
	case ModeGSS:
		return c.HasKerberos
	}
	return false
}

// Responses computes the LM and NT response slots for the server
// challenge per the selected mode.
func (c *Credentials) Responses(ch *ntlm.Challenge) (lm, nt []byte, err error) {
	switch c.Mode {
	case ModeLM:
		return ntlm.LMResponse(c.LM, ch.Challenge), nil, nil
	case ModeNT:
		return nil, ntlm.LMResponse(c.NT, ch.Challenge), nil
	case ModeNTLM:
		return ntlm.LMResponse(c.LM, ch.Challenge), ntlm.LMResponse(c.NT, ch.Challenge), nil
	case ModeNTLM2SR:
		nonce, err := ntlm.Nonce()
		if err != nil {
			return nil, nil, err
		}
		lm, nt = ntlm.NTLM2SessionResponse(c.NT, ch.Challenge, nonce)
		return lm, nt, nil
	case ModeNTLMv2:
		nonce, err := ntlm.Nonce()
		if err != nil {
			return nil, nil, err
		}
		ts := ntlm.FileTime(time.Now().Unix())
		lm = ntlm.LMv2Response(c.NTLMv2, ch.Challenge, nonce)
		nt = ntlm.NTLMv2Response(c.NTLMv2, ch.Challenge, ts, nonce, ch.TargetInfo)
		return lm, nt, nil
	}
	return nil, nil, fmt.Errorf("auth: mode %v has no NTLM responses", c.Mode)
}

// WithMode returns a copy of c switched to another mode. Used by the
// autodetect sweep; the copy shares the immutable hash slots.
func (c *Credentials) WithMode(m Mode) *Credentials {
	cp := *c
	cp.Mode = m
	return &cp
}
