// Package config parses the line-oriented configuration file and turns
// the merged operator surface (file plus flags) into the validated
// startup objects the proxy consumes.
//
// The file format is "key value" per line, # comments, with repeatable
// keys for Proxy, NoProxy, Listen, SOCKS5Proxy, SOCKS5Users, Tunnel,
// Header and ISAScannerAgent. Command-line values override file
// values; unknown keys are reported for logging, not fatal.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/smnsjas/go-ntlmproxy/httpio"
)

// ErrConfig marks startup-fatal configuration problems.
var ErrConfig = errors.New("config: invalid configuration")

// Config is the raw operator surface before validation. String-typed
// so that flag and file sources merge uniformly.
type Config struct {
	AuthMode    string
	Domain      string
	Username    string
	Workstation string
	Password    string

	PassLM     string
	PassNT     string
	PassNTLMv2 string

	// FlagsOverride is the raw 32-bit NTLM flags value, hex or decimal;
	// empty means computed.
	FlagsOverride string

	Parents      []string
	NoProxy      []string
	Listen       []string
	SOCKS5Listen []string
	Tunnels      []string
	SOCKSUsers   []string
	Headers      []string

	ScannerAgents []string
	ScannerSize   int64

	BasicBridge bool
	Gateway     bool
	PIDFile     string
	PACFile     string
	LogRequests bool
	TraceFile   string

	// Unknown collects unrecognized file keys for a warning log line.
	Unknown []string
}

// LoadFile parses a configuration file into cfg, appending repeatable
// keys and filling scalar keys only when still empty (flags win).
func (c *Config) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, _ := strings.Cut(line, "\t")
		if !strings.Contains(line, "\t") {
			key, value, _ = strings.Cut(line, " ")
		}
		value = strings.TrimSpace(strings.Trim(strings.TrimSpace(value), `"`))
		if err := c.apply(key, value); err != nil {
			return fmt.Errorf("%w: %s:%d: %v", ErrConfig, path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrConfig, path, err)
	}
	return nil
}

// setScalar fills dst only when the flag surface left it empty.
func setScalar(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func (c *Config) apply(key, value string) error {
	switch strings.ToLower(key) {
	case "auth":
		setScalar(&c.AuthMode, value)
	case "domain":
		setScalar(&c.Domain, value)
	case "username":
		setScalar(&c.Username, value)
	case "workstation":
		setScalar(&c.Workstation, value)
	case "password":
		setScalar(&c.Password, value)
	case "passlm":
		setScalar(&c.PassLM, value)
	case "passnt":
		setScalar(&c.PassNT, value)
	case "passntlmv2":
		setScalar(&c.PassNTLMv2, value)
	case "flags":
		setScalar(&c.FlagsOverride, value)
	case "proxy":
		c.Parents = append(c.Parents, value)
	case "noproxy":
		c.NoProxy = append(c.NoProxy, value)
	case "listen":
		c.Listen = append(c.Listen, value)
	case "socks5proxy":
		c.SOCKS5Listen = append(c.SOCKS5Listen, value)
	case "socks5users":
		c.SOCKSUsers = append(c.SOCKSUsers, value)
	case "tunnel":
		c.Tunnels = append(c.Tunnels, value)
	case "header":
		c.Headers = append(c.Headers, value)
	case "isascanneragent":
		c.ScannerAgents = append(c.ScannerAgents, value)
	case "isascannersize":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("ISAScannerSize %q: %v", value, err)
		}
		if c.ScannerSize == 0 {
			c.ScannerSize = n
		}
	case "ntlmtobasic":
		if truthy(value) {
			c.BasicBridge = true
		}
	case "gateway":
		if truthy(value) {
			c.Gateway = true
		}
	case "pidfile":
		setScalar(&c.PIDFile, value)
	case "pacfile":
		setScalar(&c.PACFile, value)
	default:
		c.Unknown = append(c.Unknown, key)
	}
	return nil
}

func truthy(value string) bool {
	switch strings.ToLower(value) {
	case "yes", "true", "on", "1":
		return true
	}
	return false
}

// ParseFlagsOverride decodes the raw NTLM flags value ("0xa208b205" or
// decimal). Empty returns zero, meaning computed flags.
func (c *Config) ParseFlagsOverride() (uint32, error) {
	s := strings.TrimSpace(c.FlagsOverride)
	if s == "" {
		return 0, nil
	}
	base := 10
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: Flags %q", ErrConfig, c.FlagsOverride)
	}
	return uint32(v), nil
}

// ParseParent splits a "host:port" (or bare "host", defaulting to
// 3128) parent spec.
func ParseParent(spec string) (host, port string, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", "", fmt.Errorf("%w: empty parent spec", ErrConfig)
	}
	if !strings.Contains(spec, ":") {
		return spec, "3128", nil
	}
	host, port, err = net.SplitHostPort(spec)
	if err != nil || host == "" {
		return "", "", fmt.Errorf("%w: parent %q", ErrConfig, spec)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return "", "", fmt.Errorf("%w: parent port %q", ErrConfig, port)
	}
	return host, port, nil
}

// ParseListen turns a "[addr:]port" listener spec into a bind address.
// A bare port binds loopback, or all interfaces in gateway mode.
func ParseListen(spec string, gateway bool) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("%w: empty listen spec", ErrConfig)
	}
	if !strings.Contains(spec, ":") {
		if _, err := strconv.Atoi(spec); err != nil {
			return "", fmt.Errorf("%w: listen port %q", ErrConfig, spec)
		}
		if gateway {
			return ":" + spec, nil
		}
		return "127.0.0.1:" + spec, nil
	}
	if _, _, err := net.SplitHostPort(spec); err != nil {
		return "", fmt.Errorf("%w: listen %q", ErrConfig, spec)
	}
	return spec, nil
}

// ParseTunnel splits a "[laddr:]lport:rhost:rport" tunnel spec into
// the bind address and the fixed target.
func ParseTunnel(spec string, gateway bool) (bind, target string, err error) {
	parts := strings.Split(strings.TrimSpace(spec), ":")
	switch len(parts) {
	case 3:
		bind, err = ParseListen(parts[0], gateway)
		if err != nil {
			return "", "", err
		}
		target = net.JoinHostPort(parts[1], parts[2])
	case 4:
		bind = net.JoinHostPort(parts[0], parts[1])
		target = net.JoinHostPort(parts[2], parts[3])
	default:
		return "", "", fmt.Errorf("%w: tunnel %q", ErrConfig, spec)
	}
	if _, err := strconv.Atoi(parts[len(parts)-1]); err != nil {
		return "", "", fmt.Errorf("%w: tunnel port in %q", ErrConfig, spec)
	}
	return bind, target, nil
}

// ParseSOCKSUsers builds the user map from "user:pass" entries.
func ParseSOCKSUsers(entries []string) (map[string]string, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	users := make(map[string]string, len(entries))
	for _, e := range entries {
		user, pass, ok := strings.Cut(strings.TrimSpace(e), ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("%w: SOCKS5 user %q", ErrConfig, e)
		}
		users[user] = pass
	}
	return users, nil
}

// ParseHeaders builds substitutions from "Name: value" entries.
func ParseHeaders(entries []string) ([]httpio.Substitution, error) {
	var subs []httpio.Substitution
	for _, e := range entries {
		name, value, ok := strings.Cut(e, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: header %q", ErrConfig, e)
		}
		subs = append(subs, httpio.Substitution{Name: name, Value: strings.TrimSpace(value)})
	}
	return subs, nil
}
