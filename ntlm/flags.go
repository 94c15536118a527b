package ntlm

// Negotiate flags from MS-NLMP 2.2.2.5. Only the subset this package
// emits or inspects is named.
const (
	NegotiateUnicode             uint32 = 0x00000001
	NegotiateOEM                 uint32 = 0x00000002
	RequestTarget                uint32 = 0x00000004
	NegotiateSign                uint32 = 0x00000010
	NegotiateSeal                uint32 = 0x00000020
	NegotiateLMKey               uint32 = 0x00000080
	NegotiateNTLM                uint32 = 0x00000200
	NegotiateDomainSupplied      uint32 = 0x00001000
	NegotiateWorkstationSupplied uint32 = 0x00002000
	NegotiateAlwaysSign          uint32 = 0x00008000
	TargetTypeDomain             uint32 = 0x00010000
	TargetTypeServer             uint32 = 0x00020000
	NegotiateNTLM2Key            uint32 = 0x00080000
	NegotiateTargetInfo          uint32 = 0x00800000
	Negotiate128                 uint32 = 0x20000000
	NegotiateKeyExchange         uint32 = 0x40000000
	Negotiate56                  uint32 = 0x80000000
)

// FlagSet reports whether flag is set in flags.
func FlagSet(flags, flag uint32) bool {
	return flags&flag != 0
}

// DefaultFlags computes the Type-1 negotiate flags for the given hash
// selection. Domain and workstation presence toggles the corresponding
// "supplied" bits; the v2 family and the session-response scheme request
// NTLM2 key negotiation.
func DefaultFlags(domain, workstation string, haveLM, haveNT, haveV2 bool) uint32 {
	flags := NegotiateUnicode | NegotiateOEM | RequestTarget | NegotiateNTLM | NegotiateAlwaysSign
	if domain != "" {
		flags |= NegotiateDomainSupplied
	}
	if workstation != "" {
		flags |= NegotiateWorkstationSupplied
	}
	if haveV2 || (haveLM && haveNT) {
		flags |= NegotiateNTLM2Key
	}
	return flags
}
