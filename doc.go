// Package ntlmproxy is a local authenticating HTTP/HTTPS proxy for
// clients stuck behind a parent proxy that demands NTLM-family
// authentication.
//
// Clients connect to it as a plain HTTP proxy, a SOCKS5 server, or a
// fixed TCP tunnel; the proxy performs the LM / NT / NTLMv2 / NTLM2
// session-response (or Negotiate/Kerberos) handshake against the
// parent on their behalf, pools the authenticated upstream
// connections, and relays traffic.
//
// # Architecture
//
// The module is organized into layers:
//
//	┌─────────────────────────────────────────────────────────┐
//	│  cmd/ntlmproxy   flags, config file, signals, PID file  │
//	├─────────────────────────────────────────────────────────┤
//	│  proxy/          dispatcher, forwarder state machine,   │
//	│                  pool, parent selector, SOCKS5, tunnels │
//	├─────────────────────────────────────────────────────────┤
//	│  auth/ pac/      credentials + security providers, PAC  │
//	├─────────────────────────────────────────────────────────┤
//	│  ntlm/ httpio/   wire codecs: NTLMSSP messages, HTTP    │
//	│                  preambles and body framing             │
//	└─────────────────────────────────────────────────────────┘
//
// # Quick Start
//
//	ntlmproxy -u alice -d CORP -l 3128 proxy.corp:8080
//
// then point HTTP_PROXY at localhost:3128.
package ntlmproxy
