package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/armchr/graphogm/internal/config"

	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SFTPStore is a FileStore on a remote host reached over SFTP.
type SFTPStore struct {
	client *sftp.Client
	conn   io.Closer
	logger *zap.Logger
}

// NewSFTPStore wraps an established SFTP client. conn, when not nil, is
// closed together with the client.
func NewSFTPStore(client *sftp.Client, conn io.Closer, logger *zap.Logger) *SFTPStore {
	return &SFTPStore{client: client, conn: conn, logger: logger}
}

// DialSFTP connects to the host described by cfg. Password and private key
// authentication are both offered when configured. Without known_hosts the
// host key is not verified and a warning is logged.
func DialSFTP(cfg config.SFTPConfig, logger *zap.Logger) (*SFTPStore, error) {
	var methods []ssh.AuthMethod
	if cfg.PrivateKeyPath != "" {
		signer, err := loadSigner(cfg.PrivateKeyPath, cfg.PrivateKeyPassphrase)
		if err != nil {
			return nil, err
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		logger.Warn("SFTP host key is not verified; set sftp.known_hosts", zap.String("host", cfg.Host))
	}

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         15 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: ssh dial %s: %w", ErrStorage, addr, err)
	}

	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: sftp session: %w", ErrStorage, err)
	}

	logger.Info("Connected to SFTP store", zap.String("addr", addr), zap.String("user", cfg.User))
	return NewSFTPStore(client, conn, logger), nil
}

func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(key)
}

// Put uploads localPath to remotePath, replacing any existing file.
func (s *SFTPStore) Put(ctx context.Context, localPath, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := s.client.Create(remotePath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *SFTPStore) Remove(ctx context.Context, remotePath string) error {
	return s.client.Remove(remotePath)
}

func (s *SFTPStore) Exists(ctx context.Context, remotePath string) (bool, error) {
	_, err := s.client.Stat(remotePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *SFTPStore) Mkdir(ctx context.Context, remotePath string) error {
	return s.client.Mkdir(remotePath)
}

// Close ends the SFTP session and the underlying connection.
func (s *SFTPStore) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Open builds the FileStore described by cfg: a LocalStore when local_dir
// is set, otherwise an SFTP connection. It returns nil when neither is
// configured.
func Open(cfg config.SFTPConfig, logger *zap.Logger) (FileStore, io.Closer, error) {
	switch {
	case cfg.LocalDir != "":
		if err := os.MkdirAll(cfg.LocalDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		return NewLocalStore(cfg.LocalDir), nopCloser{}, nil
	case cfg.Host != "":
		store, err := DialSFTP(cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, nil
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
