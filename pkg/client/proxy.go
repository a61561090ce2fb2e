package client

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/net/http/httpproxy"
)

// Credentials is a proxy username/password pair.
type Credentials struct {
	Username string
	Password string
}

// IsZero reports whether no username is set.
func (c Credentials) IsZero() bool {
	return c.Username == ""
}

// CredentialProvider supplies proxy credentials when a proxy rejects a batch
// with 407. Implementations may block on user interaction. Returning
// ErrCredentialsDeclined aborts the batch.
type CredentialProvider interface {
	ProxyCredentials(ctx context.Context, proxyURL *url.URL) (Credentials, error)
}

// StaticCredentials always returns itself.
type StaticCredentials Credentials

// ProxyCredentials implements CredentialProvider.
func (s StaticCredentials) ProxyCredentials(context.Context, *url.URL) (Credentials, error) {
	return Credentials(s), nil
}

// DeclineCredentials refuses every request for credentials.
type DeclineCredentials struct{}

// ProxyCredentials implements CredentialProvider.
func (DeclineCredentials) ProxyCredentials(context.Context, *url.URL) (Credentials, error) {
	return Credentials{}, ErrCredentialsDeclined
}

// CredentialFunc adapts a function to CredentialProvider.
type CredentialFunc func(ctx context.Context, proxyURL *url.URL) (Credentials, error)

// ProxyCredentials implements CredentialProvider.
func (f CredentialFunc) ProxyCredentials(ctx context.Context, proxyURL *url.URL) (Credentials, error) {
	return f(ctx, proxyURL)
}

// proxySelector resolves the proxy for each request and injects the
// credentials applied during 407 escalation.
type proxySelector struct {
	resolve  func(*url.URL) (*url.URL, error)
	defaults Credentials

	mu    sync.RWMutex
	creds *url.Userinfo
}

// newProxySelector uses proxyURL when set, otherwise the HTTP_PROXY,
// HTTPS_PROXY and NO_PROXY environment. Userinfo on the resolved proxy URL
// becomes the default credentials.
func newProxySelector(proxyURL string) (*proxySelector, error) {
	cfg := httpproxy.FromEnvironment()
	if proxyURL != "" {
		cfg = &httpproxy.Config{HTTPProxy: proxyURL, HTTPSProxy: proxyURL, NoProxy: cfg.NoProxy}
	}

	p := &proxySelector{resolve: cfg.ProxyFunc()}
	for _, raw := range []string{cfg.HTTPSProxy, cfg.HTTPProxy} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil {
			return nil, err
		}
		if u.User != nil {
			pw, _ := u.User.Password()
			p.defaults = Credentials{Username: u.User.Username(), Password: pw}
			break
		}
	}
	return p, nil
}

// Proxy is installed as http.Transport.Proxy.
func (p *proxySelector) Proxy(req *http.Request) (*url.URL, error) {
	u, err := p.resolve(req.URL)
	if err != nil || u == nil {
		return u, err
	}

	p.mu.RLock()
	creds := p.creds
	p.mu.RUnlock()

	if creds != nil {
		withCreds := *u
		withCreds.User = creds
		return &withCreds, nil
	}
	return u, nil
}

// proxyFor returns the proxy that serves target, without credentials.
func (p *proxySelector) proxyFor(target *url.URL) *url.URL {
	u, err := p.resolve(target)
	if err != nil || u == nil {
		return nil
	}
	stripped := *u
	stripped.User = nil
	return &stripped
}

// apply replaces the credentials sent to the proxy.
func (p *proxySelector) apply(c Credentials) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.IsZero() {
		p.creds = nil
		return
	}
	p.creds = url.UserPassword(c.Username, c.Password)
}
