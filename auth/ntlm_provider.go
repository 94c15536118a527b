package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/smnsjas/go-ntlmproxy/ntlm"
)

// ErrHandshakeState is returned when Step is driven out of order.
var ErrHandshakeState = errors.New("auth: handshake out of order")

// NTLMProvider performs the Type-1 / Type-2 / Type-3 exchange for one
// upstream connection.
type NTLMProvider struct {
	creds *Credentials
	sent1 bool
	done  bool
}

// NewNTLMProvider creates a provider bound to creds. creds must have
// the hash slots for its mode populated.
func NewNTLMProvider(creds *Credentials) *NTLMProvider {
	return &NTLMProvider{creds: creds}
}

// Scheme returns the Proxy-Authorization scheme label.
func (p *NTLMProvider) Scheme() string {
	return "NTLM"
}

// Step implements SecurityProvider. The first call emits Type-1; the
// second consumes the server's Type-2 and emits Type-3.
func (p *NTLMProvider) Step(_ context.Context, inputToken []byte) ([]byte, bool, error) {
	if !p.sent1 {
		if inputToken != nil {
			return nil, false, fmt.Errorf("%w: challenge before negotiate", ErrHandshakeState)
		}
		p.sent1 = true
		return ntlm.Type1(p.creds.Flags, p.creds.Domain, p.creds.Workstation), true, nil
	}
	if p.done {
		return nil, false, fmt.Errorf("%w: handshake already complete", ErrHandshakeState)
	}

	ch, err := ntlm.ParseType2(inputToken)
	if err != nil {
		return nil, false, err
	}
	lm, nt, err := p.creds.Responses(ch)
	if err != nil {
		return nil, false, err
	}
	p.done = true

	// The server's flags decide the Type-3 string encoding.
	return ntlm.Type3(ch.Flags, lm, nt, p.creds.Domain, p.creds.User, p.creds.Workstation), false, nil
}
