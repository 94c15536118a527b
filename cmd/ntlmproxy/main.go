// Command ntlmproxy is a local authenticating proxy for environments
// behind an NTLM-challenging corporate proxy.
//
// Clients speak plain HTTP proxy, SOCKS5 or a fixed TCP tunnel to it;
// ntlmproxy performs the NTLM (or Negotiate/Kerberos) handshake
// against the parent proxy on their behalf and pools the
// authenticated connections.
//
// Password can be provided via:
//   - -p flag (least secure, visible in process list)
//   - NTLMPROXY_PASSWORD environment variable
//   - stdin prompt (if neither is set and no hashes are configured)
//
// Usage:
//
//	ntlmproxy -u user@domain -l 3128 proxy.corp:8080
//
// Examples:
//
//	# Listen on 3128, authenticate as CORP\alice against two parents
//	ntlmproxy -u alice -d CORP -l 3128 proxy1.corp:8080 proxy2.corp:8080
//
//	# Print hashes for a password-free config file
//	ntlmproxy -u alice -d CORP -H
//
//	# Which auth modes does the parent accept?
//	ntlmproxy -u alice -d CORP -M http://www.example.com/ proxy.corp:8080
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/smnsjas/go-ntlmproxy/auth"
	"github.com/smnsjas/go-ntlmproxy/config"
	ilog "github.com/smnsjas/go-ntlmproxy/internal/log"
	"github.com/smnsjas/go-ntlmproxy/ntlm"
	"github.com/smnsjas/go-ntlmproxy/pac"
	"github.com/smnsjas/go-ntlmproxy/proxy"
)

// stringArrayFlag collects repeatable flag values.
type stringArrayFlag []string

func (s *stringArrayFlag) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *stringArrayFlag) Set(value string) error {
	if value != "" {
		*s = append(*s, value)
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var cfg config.Config
	var listen, socksListen, tunnels, noProxy, socksUsers, headers, scannerAgents stringArrayFlag

	flag.StringVar(&cfg.AuthMode, "a", "", "authentication mode: ntlm, nt, lm, ntlmv2, ntlm2sr, gss")
	configFile := flag.String("c", "", "configuration file")
	flag.StringVar(&cfg.Domain, "d", "", "authentication domain")
	flag.StringVar(&cfg.Username, "u", "", "username (accepts user@domain)")
	flag.StringVar(&cfg.Password, "p", "", "password (use NTLMPROXY_PASSWORD env var instead)")
	flag.StringVar(&cfg.Workstation, "w", "", "workstation name sent in the handshake")
	flag.StringVar(&cfg.FlagsOverride, "F", "", "raw NTLM negotiate flags (e.g. 0xa208b205)")
	flag.Var(&listen, "l", "proxy listener [addr:]port (repeatable)")
	flag.Var(&socksListen, "O", "SOCKS5 listener [addr:]port (repeatable)")
	flag.Var(&tunnels, "L", "tunnel [laddr:]lport:rhost:rport (repeatable)")
	flag.Var(&noProxy, "N", "comma-separated NoProxy wildcard list (repeatable)")
	flag.Var(&socksUsers, "R", "SOCKS5 user:pass (repeatable)")
	flag.Var(&headers, "r", "header substitution \"Name: value\" (repeatable)")
	flag.Var(&scannerAgents, "isa-agent", "ISA scanner User-Agent wildcard (repeatable)")
	scannerSize := flag.Int64("isa-size", 0, "ISA scanner size ceiling in bytes")
	basicBridge := flag.Bool("B", false, "bridge client Basic credentials to the NTLM handshake")
	gateway := flag.Bool("g", false, "gateway mode: bare ports bind all interfaces")
	flag.StringVar(&cfg.PIDFile, "P", "", "write process id to this file")
	uid := flag.String("U", "", "drop privileges to this numeric uid after binding")
	flag.StringVar(&cfg.PACFile, "pac", "", "proxy auto-config script")
	magicURL := flag.String("M", "", "autodetect: probe auth modes against this test URL")
	printHashes := flag.Bool("H", false, "print password hashes for the config file and exit")
	logRequests := flag.Bool("request-log", false, "log one line per request")
	verbose := flag.Bool("v", false, "verbose (debug) logging")
	flag.StringVar(&cfg.TraceFile, "T", "", "trace log file (implies -v)")
	serial := flag.Bool("serialize", false, "debug: serialize all work on the accept goroutine")
	foreground := flag.Bool("f", true, "run in the foreground (daemonization is not performed)")
	flag.Parse()

	cfg.Parents = append(cfg.Parents, flag.Args()...)
	cfg.Listen = append(cfg.Listen, listen...)
	cfg.SOCKS5Listen = append(cfg.SOCKS5Listen, socksListen...)
	cfg.Tunnels = append(cfg.Tunnels, tunnels...)
	cfg.NoProxy = append(cfg.NoProxy, noProxy...)
	cfg.SOCKSUsers = append(cfg.SOCKSUsers, socksUsers...)
	cfg.Headers = append(cfg.Headers, headers...)
	cfg.ScannerAgents = append(cfg.ScannerAgents, scannerAgents...)
	if *scannerSize > 0 {
		cfg.ScannerSize = *scannerSize
	}
	cfg.BasicBridge = cfg.BasicBridge || *basicBridge
	cfg.Gateway = cfg.Gateway || *gateway
	cfg.LogRequests = *logRequests

	if *configFile != "" {
		if err := cfg.LoadFile(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	log, logCloser, err := ilog.Setup(ilog.Options{Verbose: *verbose, TraceFile: cfg.TraceFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logCloser.Close()
	for _, key := range cfg.Unknown {
		log.Warn("unknown configuration key", "key", key)
	}

	mode := auth.ModeNTLMv2
	if cfg.AuthMode != "" {
		mode, err = auth.ParseMode(cfg.AuthMode)
		if err != nil {
			log.Error("invalid auth mode", "mode", cfg.AuthMode, "error", err)
			return 1
		}
	}
	user, domain := auth.ParseUser(cfg.Username, cfg.Domain)

	password := cfg.Password
	if password == "" {
		password = os.Getenv("NTLMPROXY_PASSWORD")
	}
	needPassword := cfg.PassLM == "" && cfg.PassNT == "" && cfg.PassNTLMv2 == "" &&
		(user != "" || *printHashes) && mode != auth.ModeGSS
	if password == "" && needPassword {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Error("cannot read password", "error", err)
			return 1
		}
		password = string(raw)
	}

	if *printHashes {
		printHashLines(user, domain, password)
		return 0
	}

	flagsOverride, err := cfg.ParseFlagsOverride()
	if err != nil {
		log.Error("invalid flags override", "error", err)
		return 1
	}

	var passwordBuf []byte
	if password != "" {
		passwordBuf = []byte(password)
	}
	creds := auth.NewCredentials(mode, user, domain, cfg.Workstation, passwordBuf, flagsOverride)
	if err := creds.SetHashes(cfg.PassLM, cfg.PassNT, cfg.PassNTLMv2); err != nil {
		log.Error("invalid configured hashes", "error", err)
		return 1
	}

	kerberos := auth.KerberosConfig{Realm: strings.ToUpper(domain)}
	if mode == auth.ModeGSS {
		// GSS keeps the plaintext for the TGT request; NTLM modes hash
		// and zero it above.
		kerberos.Password = password
		creds.HasKerberos = true
	}

	parents, err := buildParents(cfg.Parents)
	if err != nil {
		log.Error("invalid parent list", "error", err)
		return 1
	}

	settings, err := buildSettings(&cfg, creds, kerberos)
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return 1
	}

	fwd := proxy.NewForwarder(settings, parents, log)

	if *magicURL != "" {
		return runDetect(fwd, *magicURL)
	}

	if len(parents) == 0 && settings.PAC == nil {
		log.Error("no parent proxy configured")
		return 1
	}

	listeners, err := buildListeners(&cfg)
	if err != nil {
		log.Error("cannot bind listeners", "error", err)
		return 1
	}

	if *uid != "" {
		if err := dropPrivileges(*uid); err != nil {
			log.Error("cannot drop privileges", "uid", *uid, "error", err)
			return 1
		}
	}

	if !*foreground {
		log.Warn("daemonization is not performed; running in the foreground")
	}
	if cfg.PIDFile != "" {
		if err := os.WriteFile(cfg.PIDFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
			log.Error("cannot write pid file", "path", cfg.PIDFile, "error", err)
			return 1
		}
		defer os.Remove(cfg.PIDFile)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel, log)

	d := proxy.NewDispatcher(fwd, listeners, log, *serial)
	if err := d.Run(ctx); err != nil {
		log.Error("dispatcher failed", "error", err)
		return 1
	}
	log.Info("clean shutdown")
	return 0
}

// handleSignals cancels on the first termination signal and forces
// exit on the second. SIGPIPE needs no handler; the runtime ignores it
// for sockets.
func handleSignals(cancel context.CancelFunc, log *slog.Logger) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-ch
	log.Info("shutting down", "signal", sig.String())
	cancel()
	sig = <-ch
	log.Info("forced exit", "signal", sig.String())
	os.Exit(1)
}

func printHashLines(user, domain, password string) {
	nt := ntlm.NTHash(password)
	fmt.Printf("PassLM          %x\n", ntlm.LMHash(password))
	fmt.Printf("PassNT          %x\n", nt)
	if user != "" && domain != "" {
		fmt.Printf("PassNTLMv2      %x    # Only for user '%s', domain '%s'\n",
			ntlm.NTLMv2Hash(nt, user, domain), user, domain)
	}
}

func buildParents(specs []string) ([]*proxy.ParentProxy, error) {
	var parents []*proxy.ParentProxy
	for _, spec := range specs {
		host, port, err := config.ParseParent(spec)
		if err != nil {
			return nil, err
		}
		parents = append(parents, proxy.NewParentProxy(host, port))
	}
	return parents, nil
}

func buildSettings(cfg *config.Config, creds *auth.Credentials, kerberos auth.KerberosConfig) (*proxy.Settings, error) {
	subs, err := config.ParseHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}
	users, err := config.ParseSOCKSUsers(cfg.SOCKSUsers)
	if err != nil {
		return nil, err
	}

	settings := &proxy.Settings{
		Creds:         creds,
		Kerberos:      kerberos,
		NoProxy:       proxy.NewNoProxyMatcher(cfg.NoProxy),
		Substitutions: subs,
		SOCKSUsers:    users,
		BasicBridge:   cfg.BasicBridge,
		ScannerAgents: cfg.ScannerAgents,
		ScannerSize:   cfg.ScannerSize,
		LogRequests:   cfg.LogRequests,
	}
	if cfg.PACFile != "" {
		settings.PAC, err = pac.Load(cfg.PACFile)
		if err != nil {
			return nil, err
		}
	}
	return settings, nil
}

func buildListeners(cfg *config.Config) ([]proxy.Listener, error) {
	var listeners []proxy.Listener

	bind := func(spec string, kind proxy.ListenerKind, target string) error {
		addr, err := config.ParseListen(spec, cfg.Gateway)
		if err != nil {
			return err
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		listeners = append(listeners, proxy.Listener{Listener: ln, Kind: kind, Target: target})
		return nil
	}

	for _, spec := range cfg.Listen {
		if err := bind(spec, proxy.ListenProxy, ""); err != nil {
			return nil, err
		}
	}
	for _, spec := range cfg.SOCKS5Listen {
		if err := bind(spec, proxy.ListenSOCKS, ""); err != nil {
			return nil, err
		}
	}
	for _, spec := range cfg.Tunnels {
		addr, target, err := config.ParseTunnel(spec, cfg.Gateway)
		if err != nil {
			return nil, err
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, err
		}
		listeners = append(listeners, proxy.Listener{Listener: ln, Kind: proxy.ListenTunnel, Target: target})
	}
	return listeners, nil
}

func runDetect(fwd *proxy.Forwarder, testURL string) int {
	modes := []auth.Mode{auth.ModeNTLMv2, auth.ModeNTLM2SR, auth.ModeNTLM, auth.ModeNT, auth.ModeLM}
	results := fwd.Detect(context.Background(), testURL, modes)

	failed := true
	for _, r := range results {
		switch {
		case r.Err != nil:
			fmt.Printf("%-8s  error: %v\n", r.Mode, r.Err)
		case r.OK:
			fmt.Printf("%-8s  OK (HTTP %d)\n", r.Mode, r.StatusCode)
			failed = false
		default:
			fmt.Printf("%-8s  rejected (HTTP %d)\n", r.Mode, r.StatusCode)
		}
	}
	if failed {
		return 1
	}
	return 0
}

func dropPrivileges(uid string) error {
	id, err := strconv.Atoi(uid)
	if err != nil {
		return fmt.Errorf("uid must be numeric: %w", err)
	}
	return syscall.Setuid(id)
}
