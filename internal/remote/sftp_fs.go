package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	pathpkg "path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const defaultRemotePath = "."

// Config configures a remote SFTP connection.
type Config struct {
	Target    string // user@host
	Port      int
	BatchMode bool
	Timeout   time.Duration
}

type sftpClient interface {
	ReadDir(string) ([]os.FileInfo, error)
	Lstat(string) (os.FileInfo, error)
	Stat(string) (os.FileInfo, error)
	RealPath(string) (string, error)
	Remove(string) error
	RemoveDirectory(string) error
}

var dialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

var sshNewClientConn = func(conn net.Conn, addr string, config *ssh.ClientConfig) (ssh.Conn, <-chan ssh.NewChannel, <-chan *ssh.Request, error) {
	return ssh.NewClientConn(conn, addr, config)
}

// SFTPFS is a cleaner filesystem backed by an SFTP session. Removals are
// constrained to strict descendants of Root.
type SFTPFS struct {
	root   string
	client sftpClient
	closer io.Closer
}

// Dial connects to cfg.Target and opens remotePath as the cleanup root.
func Dial(ctx context.Context, cfg Config, remotePath string) (*SFTPFS, error) {
	client, closer, err := dialSFTP(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := open(client, closer, remotePath)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return s, nil
}

func open(client sftpClient, closer io.Closer, remotePath string) (*SFTPFS, error) {
	if strings.TrimSpace(remotePath) == "" {
		remotePath = defaultRemotePath
	}
	root := cleanRemotePath(remotePath)
	if resolved, err := client.RealPath(root); err == nil {
		root = cleanRemotePath(resolved)
	}

	info, err := client.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot stat remote path %q: %w", root, normalizeErr(err))
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return &SFTPFS{root: root, client: client, closer: closer}, nil
}

// Root returns the resolved remote cleanup root.
func (s *SFTPFS) Root() string { return s.root }

// Close ends the SFTP session and the SSH connection.
func (s *SFTPFS) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func (s *SFTPFS) ReadDir(ctx context.Context, dir string) ([]fs.DirEntry, error) {
	infos, err := readRemoteDir(ctx, s.client, dir)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: normalizeErr(err)}
	}
	entries := make([]fs.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, fs.FileInfoToDirEntry(info))
	}
	return entries, nil
}

func (s *SFTPFS) RemoveAll(ctx context.Context, p string) error {
	p = cleanRemotePath(p)
	if !isStrictlyWithinRemote(s.root, p) {
		return fmt.Errorf("refusing to delete %s: outside cleanup root %s", p, s.root)
	}
	return s.removeTree(ctx, p)
}

// removeTree deletes p without following symlinks. Children that vanish
// mid-removal are ignored.
func (s *SFTPFS) removeTree(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := s.client.Lstat(p)
	if err != nil {
		return &fs.PathError{Op: "lstat", Path: p, Err: normalizeErr(err)}
	}
	if !info.IsDir() {
		if err := s.client.Remove(p); err != nil {
			return &fs.PathError{Op: "remove", Path: p, Err: normalizeErr(err)}
		}
		return nil
	}

	children, err := readRemoteDir(ctx, s.client, p)
	if err != nil {
		return &fs.PathError{Op: "readdir", Path: p, Err: normalizeErr(err)}
	}
	for _, child := range children {
		err := s.removeTree(ctx, pathpkg.Join(p, child.Name()))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	if err := s.client.RemoveDirectory(p); err != nil {
		return &fs.PathError{Op: "rmdir", Path: p, Err: normalizeErr(err)}
	}
	return nil
}

func (s *SFTPFS) Join(elem ...string) string {
	return pathpkg.Join(elem...)
}

// normalizeErr maps SFTP status codes onto the io/fs sentinels so callers
// can classify remote and local failures alike.
func normalizeErr(err error) error {
	var status *sftp.StatusError
	if !errors.As(err, &status) {
		return err
	}
	switch status.FxCode() {
	case sftp.ErrSSHFxNoSuchFile:
		return fmt.Errorf("%w: %v", fs.ErrNotExist, err)
	case sftp.ErrSSHFxPermissionDenied:
		return fmt.Errorf("%w: %v", fs.ErrPermission, err)
	}
	return err
}

func cleanRemotePath(p string) string {
	if p == "" {
		return defaultRemotePath
	}
	return pathpkg.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// isStrictlyWithinRemote reports whether target is below root using POSIX
// path semantics. root itself is not within root.
func isStrictlyWithinRemote(root, target string) bool {
	root = pathpkg.Clean(root)
	target = pathpkg.Clean(target)
	if root == target {
		return false
	}
	prefix := root
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return strings.HasPrefix(target, prefix)
}

func readRemoteDir(ctx context.Context, client sftpClient, dirPath string) ([]os.FileInfo, error) {
	if rc, ok := client.(interface {
		ReadDirContext(context.Context, string) ([]os.FileInfo, error)
	}); ok {
		return rc.ReadDirContext(ctx, dirPath)
	}
	return client.ReadDir(dirPath)
}

func dialSFTP(ctx context.Context, cfg Config) (sftpClient, io.Closer, error) {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, nil, fmt.Errorf("ssh port must be between 1 and 65535")
	}

	user, host, err := splitTarget(cfg.Target)
	if err != nil {
		return nil, nil, err
	}

	hosts, err := newKnownHosts(host, cfg.Port, cfg.BatchMode)
	if err != nil {
		return nil, nil, err
	}
	hostCB, err := hosts.callback()
	if err != nil {
		return nil, nil, err
	}

	auth, err := authMethods(user, host, cfg.BatchMode)
	if err != nil {
		return nil, nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sshConfig := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostCB,
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(cfg.Port))
	sshClient, err := connectSSH(dialCtx, addr, sshConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("SSH connection failed: %w", err)
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()
		return nil, nil, fmt.Errorf("cannot start SFTP subsystem: %w", err)
	}

	return client, &remoteCloser{ssh: sshClient, sftp: client}, nil
}

func connectSSH(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	conn, err := dialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	// Ensure cancellation interrupts handshake/authentication.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	c, chans, reqs, err := sshNewClientConn(conn, addr, config)
	close(done)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

type remoteCloser struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (c *remoteCloser) Close() error {
	var retErr error
	if c.sftp != nil {
		retErr = c.sftp.Close()
	}
	if c.ssh != nil {
		if err := c.ssh.Close(); err != nil && retErr == nil {
			retErr = err
		}
	}
	return retErr
}
