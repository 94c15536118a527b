package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-krb5/krb5/client"
	"github.com/go-krb5/krb5/config"
	"github.com/go-krb5/krb5/credentials"
	"github.com/go-krb5/krb5/spnego"
)

// KerberosProvider produces the SPNEGO Negotiate token for a parent
// proxy. Proxy authentication is single-leg: the proxy either accepts
// the initial NegTokenInit or rejects the request, so Step never asks
// for a second round.
type KerberosProvider struct {
	client    *client.Client
	targetSPN string
}

// KerberosConfig selects the credential source for the Kerberos
// client. CCachePath falls back to $KRB5CCNAME, then to Password when
// one was supplied.
type KerberosConfig struct {
	Realm        string
	Krb5ConfPath string
	CCachePath   string
	Password     string
}

// NewKerberosProvider builds a logged-in Kerberos client for the proxy
// at proxyHost. The SPN is HTTP/<proxy-host>.
func NewKerberosProvider(cfg KerberosConfig, creds *Credentials, proxyHost string) (*KerberosProvider, error) {
	confPath := cfg.Krb5ConfPath
	if confPath == "" {
		confPath = os.Getenv("KRB5_CONFIG")
		if confPath == "" {
			confPath = "/etc/krb5.conf"
		}
	}
	conf, err := config.Load(confPath)
	if err != nil {
		return nil, fmt.Errorf("auth: load krb5.conf from %s: %w", confPath, err)
	}

	realm := cfg.Realm
	if realm == "" {
		realm = strings.ToUpper(creds.Domain)
	}

	var cl *client.Client
	ccache := cfg.CCachePath
	if ccache == "" {
		ccache = strings.TrimPrefix(os.Getenv("KRB5CCNAME"), "FILE:")
	}
	if ccache != "" {
		cc, err := credentials.LoadCCache(ccache)
		if err != nil {
			return nil, fmt.Errorf("auth: load ccache from %s: %w", ccache, err)
		}
		cl, err = client.NewFromCCache(cc, conf, client.DisablePAFXFAST(true))
		if err != nil {
			return nil, fmt.Errorf("auth: create client from ccache: %w", err)
		}
	} else if cfg.Password != "" {
		cl = client.NewWithPassword(creds.User, realm, cfg.Password, conf, client.DisablePAFXFAST(true))
	} else {
		return nil, fmt.Errorf("auth: no kerberos credentials (ccache or password required)")
	}

	if err := cl.Login(); err != nil {
		return nil, fmt.Errorf("auth: kerberos login: %w", err)
	}

	return &KerberosProvider{
		client:    cl,
		targetSPN: "HTTP/" + proxyHost,
	}, nil
}

// Scheme returns the Proxy-Authorization scheme label.
func (p *KerberosProvider) Scheme() string {
	return "Negotiate"
}

// Step implements SecurityProvider: one NegTokenInit carrying the
// AP-REQ for the proxy's HTTP service.
func (p *KerberosProvider) Step(_ context.Context, inputToken []byte) ([]byte, bool, error) {
	if inputToken != nil {
		return nil, false, fmt.Errorf("%w: proxy negotiate is single-leg", ErrHandshakeState)
	}

	tkt, sessionKey, err := p.client.GetServiceTicket(p.targetSPN)
	if err != nil {
		return nil, false, fmt.Errorf("auth: get service ticket for %s: %w", p.targetSPN, err)
	}

	negTokenInit, err := spnego.NewNegTokenInitKRB5(p.client, tkt, sessionKey)
	if err != nil {
		return nil, false, fmt.Errorf("auth: create NegTokenInit: %w", err)
	}

	token := &spnego.SPNEGOToken{
		Init:         true,
		NegTokenInit: negTokenInit,
	}
	tokenBytes, err := token.Marshal()
	if err != nil {
		return nil, false, fmt.Errorf("auth: marshal SPNEGO token: %w", err)
	}
	return tokenBytes, false, nil
}
