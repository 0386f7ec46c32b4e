package remote

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"
)

var identityFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

func splitTarget(target string) (user, host string, err error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", "", errors.New("remote target is required")
	}
	user, host, ok := strings.Cut(target, "@")
	if !ok || user == "" || host == "" || strings.Contains(host, "@") {
		return "", "", fmt.Errorf("invalid remote target %q: expected user@host", target)
	}
	if strings.HasPrefix(user, "-") || strings.HasPrefix(host, "-") {
		return "", "", fmt.Errorf("invalid remote target %q", target)
	}
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	return user, host, nil
}

// hostAlias is the known_hosts spelling of host:port.
func hostAlias(host string, port int) string {
	if port == 22 {
		return host
	}
	return fmt.Sprintf("[%s]:%d", host, port)
}

// knownHosts verifies server keys against ~/.ssh/known_hosts, trusting new
// hosts on first use when a terminal is available.
type knownHosts struct {
	path  string
	host  string
	port  int
	batch bool
	ask   func(prompt string) (bool, error)
}

func newKnownHosts(host string, port int, batch bool) (*knownHosts, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot determine home directory for known_hosts: %w", err)
	}
	dir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", dir, err)
	}
	path := filepath.Join(dir, "known_hosts")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("cannot access known_hosts: %w", err)
	}
	f.Close()

	return &knownHosts{path: path, host: host, port: port, batch: batch, ask: askYesNo}, nil
}

func (k *knownHosts) callback() (ssh.HostKeyCallback, error) {
	verify, err := knownhosts.New(k.path)
	if err != nil {
		return nil, fmt.Errorf("cannot load known_hosts: %w", err)
	}
	return func(hostname string, addr net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, addr, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return fmt.Errorf("host key verification failed: %w", err)
		}
		if len(keyErr.Want) == 0 {
			return k.trustNew(key)
		}
		return k.replaceChanged(key, keyErr.Want)
	}, nil
}

func (k *knownHosts) trustNew(key ssh.PublicKey) error {
	alias := hostAlias(k.host, k.port)
	fingerprint := ssh.FingerprintSHA256(key)
	if k.batch {
		return fmt.Errorf("unknown host key for %s (%s); connect with ssh once to trust it or drop --ssh-batch", alias, fingerprint)
	}
	ok, err := k.ask(fmt.Sprintf(
		"The authenticity of host '%s' can't be established.\n%s key fingerprint is %s.\nTrust this host and continue connecting (yes/no)? ",
		alias, key.Type(), fingerprint))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("host key for %s was not trusted", alias)
	}

	f, err := os.OpenFile(k.path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("cannot update known_hosts: %w", err)
	}
	defer f.Close()
	if _, err := io.WriteString(f, knownhosts.Line([]string{alias}, key)+"\n"); err != nil {
		return fmt.Errorf("cannot write known_hosts entry: %w", err)
	}
	return nil
}

func (k *knownHosts) replaceChanged(key ssh.PublicKey, want []knownhosts.KnownKey) error {
	alias := hostAlias(k.host, k.port)
	expected := make([]string, 0, len(want))
	for _, w := range want {
		expected = append(expected, ssh.FingerprintSHA256(w.Key))
	}
	presented := ssh.FingerprintSHA256(key)

	if k.batch {
		return fmt.Errorf("host key mismatch for %s: expected %s, presented %s", alias, strings.Join(expected, ", "), presented)
	}
	ok, err := k.ask(fmt.Sprintf(
		"WARNING: HOST KEY CHANGED for '%s'.\nExpected: %s\nPresented: %s\nReplace stored key and continue (yes/no)? ",
		alias, strings.Join(expected, ", "), presented))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("host key mismatch for %s", alias)
	}

	data, err := os.ReadFile(k.path)
	if err != nil {
		return fmt.Errorf("cannot read known_hosts: %w", err)
	}
	kept := dropHostEntries(data, k.host, k.port)
	if len(kept) > 0 && kept[len(kept)-1] != '\n' {
		kept = append(kept, '\n')
	}
	kept = append(kept, knownhosts.Line([]string{alias}, key)+"\n"...)
	if err := os.WriteFile(k.path, kept, 0o600); err != nil {
		return fmt.Errorf("cannot write known_hosts: %w", err)
	}
	return nil
}

// dropHostEntries removes every known_hosts line naming host:port, keeping
// comments, blank lines, and entries for other hosts or ports.
func dropHostEntries(data []byte, host string, port int) []byte {
	names := map[string]bool{
		hostAlias(host, port):              true,
		fmt.Sprintf("[%s]:%d", host, port): true,
	}

	lines := strings.Split(string(data), "\n")
	kept := lines[:0]
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			kept = append(kept, line)
			continue
		}
		hostField := fields[0]
		if strings.HasPrefix(hostField, "@") {
			if len(fields) < 2 {
				kept = append(kept, line)
				continue
			}
			hostField = fields[1]
		}
		match := false
		for _, h := range strings.Split(hostField, ",") {
			if names[h] {
				match = true
				break
			}
		}
		if !match {
			kept = append(kept, line)
		}
	}
	return []byte(strings.Join(kept, "\n"))
}

func askYesNo(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errors.New("cannot prompt for host key trust: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("host key prompt failed: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// authMethods returns agent, identity-file and (unless batch) password
// authentication, in that order.
func authMethods(user, host string, batch bool) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := strings.TrimSpace(os.Getenv("SSH_AUTH_SOCK")); sock != "" {
		methods = append(methods, ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
			conn, err := net.Dial("unix", sock)
			if err != nil {
				return nil, err
			}
			defer conn.Close()
			return agent.NewClient(conn).Signers()
		}))
	}

	if signers := identitySigners(); len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if !batch {
		p := &passwordPrompt{user: user, host: host}
		methods = append(methods, ssh.PasswordCallback(p.password), ssh.KeyboardInteractive(p.challenge))
	}

	if len(methods) == 0 {
		return nil, errors.New("no SSH auth methods available (configure ssh-agent or private keys, or drop --ssh-batch)")
	}
	return methods, nil
}

// identitySigners loads unencrypted default identities from ~/.ssh.
func identitySigners() []ssh.Signer {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var signers []ssh.Signer
	for _, name := range identityFiles {
		pem, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			continue
		}
		signers = append(signers, signer)
	}
	return signers
}

// passwordPrompt asks once per connection and reuses the answer for
// keyboard-interactive challenges.
type passwordPrompt struct {
	user, host string

	once sync.Once
	pass string
	err  error
}

func (p *passwordPrompt) password() (string, error) {
	p.once.Do(func() {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			p.err = errors.New("cannot prompt for SSH password: stdin is not a terminal")
			return
		}
		fmt.Fprintf(os.Stderr, "%s@%s's password: ", p.user, p.host)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			p.err = fmt.Errorf("password prompt failed: %w", err)
			return
		}
		p.pass = string(b)
	})
	return p.pass, p.err
}

func (p *passwordPrompt) challenge(_, _ string, questions []string, echos []bool) ([]string, error) {
	pass, err := p.password()
	if err != nil {
		return nil, err
	}
	answers := make([]string, len(questions))
	for i := range questions {
		if i < len(echos) && echos[i] {
			continue
		}
		answers[i] = pass
	}
	return answers, nil
}
