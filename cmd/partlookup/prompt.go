package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/Sternrassler/partmatch-client/pkg/client"
	"golang.org/x/term"
)

// terminalPrompt asks for proxy credentials on the controlling terminal.
// Concurrent requests are serialized so prompts do not interleave.
type terminalPrompt struct {
	in  *bufio.Reader
	out io.Writer
	fd  int

	isTerminal   func(fd int) bool
	readPassword func(fd int) ([]byte, error)

	mu sync.Mutex
}

func newTerminalPrompt(in *os.File, out io.Writer) *terminalPrompt {
	return &terminalPrompt{
		in:           bufio.NewReader(in),
		out:          out,
		fd:           int(in.Fd()),
		isTerminal:   term.IsTerminal,
		readPassword: term.ReadPassword,
	}
}

// ProxyCredentials implements client.CredentialProvider. An empty username
// or a non-interactive stdin declines.
func (p *terminalPrompt) ProxyCredentials(ctx context.Context, proxyURL *url.URL) (client.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return client.Credentials{}, err
	}
	if !p.isTerminal(p.fd) {
		return client.Credentials{}, client.ErrCredentialsDeclined
	}

	host := "proxy"
	if proxyURL != nil {
		host = proxyURL.Host
	}
	fmt.Fprintf(p.out, "Proxy %s requires authentication.\nUsername (empty to cancel): ", host)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return client.Credentials{}, fmt.Errorf("read username: %w", err)
	}
	username := strings.TrimSpace(line)
	if username == "" {
		return client.Credentials{}, client.ErrCredentialsDeclined
	}

	fmt.Fprint(p.out, "Password: ")
	pw, err := p.readPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return client.Credentials{}, fmt.Errorf("read password: %w", err)
	}
	return client.Credentials{Username: username, Password: string(pw)}, nil
}
