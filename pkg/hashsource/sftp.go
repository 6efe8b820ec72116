package hashsource

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/joe/cloudpull/internal/parse"
)

// Exported constants.
const (
	// DefaultSFTPPort is used when the URL omits a port.
	DefaultSFTPPort = 22
)

// sftpSource hashes files on a directory tree reachable over SFTP.
type sftpSource struct {
	sshClient  *ssh.Client
	sftpClient *sftp.Client
	root       string
}

// newSFTPSource parses an sftp:// URL, connects, and returns a Source over
// the remote tree. Authentication tries the SSH agent, then default keys.
func newSFTPSource(rawURL string) (*sftpSource, error) {
	user, host, port, root, err := parseSFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	authMethods := sshAuthMethods()
	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no SSH authentication methods available for %s", host) //nolint:err113 // connection diagnostic
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // #nosec G106 - NAS on a trusted local network
	}

	sshClient, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", host, port), config)
	if err != nil {
		return nil, fmt.Errorf("SSH connection to %s failed: %w", host, err)
	}

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		_ = sshClient.Close()

		return nil, fmt.Errorf("SFTP session creation failed: %w", err)
	}

	return &sftpSource{sshClient: sshClient, sftpClient: sftpClient, root: root}, nil
}

// Hashes walks the remote tree and hashes every regular file passing the
// filter. Paths are returned relative to the root with forward slashes.
func (s *sftpSource) Hashes(filter PathFilter) ([]parse.HashRecord, error) {
	var records []parse.HashRecord

	walker := s.sftpClient.Walk(s.root)

	for walker.Step() {
		if err := walker.Err(); err != nil { //nolint:noinlineerr // Inline error check is idiomatic for walker error handling
			return nil, fmt.Errorf("failed to walk remote %s: %w", s.root, err)
		}

		if walker.Stat().IsDir() {
			continue
		}

		fullPath := walker.Path()

		relPath := strings.TrimPrefix(strings.TrimPrefix(fullPath, s.root), "/")

		if filter != nil && !filter(relPath) {
			continue
		}

		hash, err := s.hashRemoteFile(fullPath)
		if err != nil {
			return nil, err
		}

		records = append(records, parse.HashRecord{Hash: hash, Path: relPath})
	}

	return records, nil
}

// Close closes the SFTP session and SSH connection.
func (s *sftpSource) Close() error {
	var firstErr error

	if s.sftpClient != nil {
		if err := s.sftpClient.Close(); err != nil && firstErr == nil { //nolint:noinlineerr // Close error bookkeeping
			firstErr = err
		}
	}

	if s.sshClient != nil {
		if err := s.sshClient.Close(); err != nil && firstErr == nil { //nolint:noinlineerr // Close error bookkeeping
			firstErr = err
		}
	}

	return firstErr
}

// hashRemoteFile hashes one remote file.
func (s *sftpSource) hashRemoteFile(path string) (string, error) {
	file, err := s.sftpClient.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open remote %s: %w", path, err)
	}

	defer func() {
		_ = file.Close()
	}()

	hash, err := hashReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to hash remote %s: %w", path, err)
	}

	return hash, nil
}

// parseSFTPURL splits sftp://user@host:port/path into its components.
func parseSFTPURL(rawURL string) (user, host string, port int, root string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("invalid SFTP URL: %w", err)
	}

	if parsed.User == nil || parsed.User.Username() == "" {
		return "", "", 0, "", fmt.Errorf("SFTP URL must include a username: %s", rawURL) //nolint:err113 // URL validation
	}

	port = DefaultSFTPPort

	if parsed.Port() != "" {
		port, err = strconv.Atoi(parsed.Port())
		if err != nil {
			return "", "", 0, "", fmt.Errorf("invalid SFTP port: %w", err)
		}
	}

	return parsed.User.Username(), parsed.Hostname(), port, parsed.Path, nil
}

// sshAuthMethods returns authentication methods in priority order: the SSH
// agent, then unencrypted default keys.
func sshAuthMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod

	if agentAuth := agentAuthMethod(); agentAuth != nil {
		methods = append(methods, agentAuth)
	}

	methods = append(methods, defaultKeyAuthMethods()...)

	return methods
}

// agentAuthMethod connects to the SSH agent if one is available.
func agentAuthMethod() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}

	conn, err := net.Dial("unix", socket)
	if err != nil {
		return nil
	}

	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers)
}

// defaultKeyAuthMethods loads unencrypted keys from the default locations.
func defaultKeyAuthMethods() []ssh.AuthMethod {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	var methods []ssh.AuthMethod

	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyData, err := os.ReadFile(filepath.Join(homeDir, ".ssh", name)) // #nosec G304 - fixed default key locations
		if err != nil {
			continue
		}

		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			// Encrypted keys are skipped.
			continue
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	return methods
}
