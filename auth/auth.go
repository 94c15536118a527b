// Package auth holds the credential material and the per-connection
// security providers used to authenticate against parent proxies.
package auth

import "context"

// SecurityProvider drives the token exchange of one authentication
// scheme over one upstream connection.
//
// # Thread Safety
//
// SecurityProvider implementations are NOT safe for concurrent use.
// Each worker creates its own provider per upstream connection; the
// provider keeps handshake state between steps.
//
// # Handshake Flow
//
//  1. Worker calls Step(nil) and sends the returned token in
//     Proxy-Authorization.
//  2. The parent answers 407 with a challenge token (NTLM Type-2).
//  3. Worker calls Step(challenge) and repeats the request with the
//     response token on the same connection.
//  4. Repeat while continueNeeded is true.
type SecurityProvider interface {
	// Step processes an input token (challenge) and produces the next
	// output token. On the first call inputToken is nil.
	Step(ctx context.Context, inputToken []byte) (outputToken []byte, continueNeeded bool, err error)

	// Scheme returns the Proxy-Authorization scheme label ("NTLM" or
	// "Negotiate").
	Scheme() string
}
