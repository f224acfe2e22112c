// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"path"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tomtom215/killfeed/internal/logging"
	"github.com/tomtom215/killfeed/internal/metrics"
)

// SFTPConfig holds connection settings for one server.
type SFTPConfig struct {
	ServerID string
	Addr     string // host:port
	User     string
	Password string

	// Timeout bounds dialing and every remote operation.
	Timeout time.Duration

	// KnownHostsPath enables host key verification when set.
	KnownHostsPath string
}

// SFTPClient implements Client over SSH using pkg/sftp.
type SFTPClient struct {
	cfg SFTPConfig

	mu   sync.Mutex
	conn *ssh.Client
	sftp *sftp.Client
}

// NewSFTPClient creates an unconnected client.
func NewSFTPClient(cfg SFTPConfig) *SFTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SFTPClient{cfg: cfg}
}

func (c *SFTPClient) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.cfg.KnownHostsPath == "" {
		logging.Debug().
			Str("server_id", c.cfg.ServerID).
			Msg("No known_hosts file configured, host key not verified")
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // G106: host key verification is opt-in via known_hosts_path
	}
	cb, err := knownhosts.New(c.cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts %s: %w", c.cfg.KnownHostsPath, err)
	}
	return cb, nil
}

// Connect dials the server and opens an SFTP session.
func (c *SFTPClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftp != nil {
		return nil
	}

	start := time.Now()
	err := c.connectLocked(ctx)
	metrics.RecordTransfer("connect", time.Since(start), err)
	return err
}

func (c *SFTPClient) connectLocked(ctx context.Context) error {
	hostKey, err := c.hostKeyCallback()
	if err != nil {
		return err
	}

	sshCfg := &ssh.ClientConfig{
		User: c.cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.cfg.Password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = c.cfg.Password
				}
				return answers, nil
			}),
		},
		HostKeyCallback: hostKey,
		Timeout:         c.cfg.Timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	dialer := net.Dialer{Timeout: c.cfg.Timeout}
	netConn, err := dialer.DialContext(dialCtx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.cfg.Addr, err)
	}

	// The handshake honours the deadline, not the context.
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = netConn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, c.cfg.Addr, sshCfg)
	if err != nil {
		_ = netConn.Close()
		return fmt.Errorf("ssh handshake with %s failed: %w", c.cfg.Addr, err)
	}
	_ = netConn.SetDeadline(time.Time{})

	conn := ssh.NewClient(sshConn, chans, reqs)
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to start sftp session: %w", err)
	}

	c.conn = conn
	c.sftp = client

	logging.Info().
		Str("server_id", c.cfg.ServerID).
		Str("addr", c.cfg.Addr).
		Msg("SFTP connection established")
	return nil
}

// Connected reports whether a session is open.
func (c *SFTPClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sftp != nil
}

// Close tears down the session and the SSH connection.
func (c *SFTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *SFTPClient) closeLocked() error {
	if c.sftp == nil {
		return nil
	}
	err := c.sftp.Close()
	if cerr := c.conn.Close(); err == nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}
	c.sftp = nil
	c.conn = nil
	return err
}

func (c *SFTPClient) session() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftp == nil {
		return nil, ErrNotConnected
	}
	return c.sftp, nil
}

// run executes fn with the operation timeout. pkg/sftp calls do not take a
// context, so a timed-out call drops the connection to unblock fn.
func (c *SFTPClient) run(ctx context.Context, op string, fn func(*sftp.Client) error) error {
	client, err := c.session()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() { done <- fn(client) }()

	select {
	case err = <-done:
		if errors.Is(err, sftp.ErrSSHFxConnectionLost) || errors.Is(err, io.EOF) {
			c.drop(client)
		}
	case <-ctx.Done():
		c.drop(client)
		err = fmt.Errorf("sftp %s timed out: %w", op, ctx.Err())
	}

	if errors.Is(err, fs.ErrNotExist) {
		err = ErrNotFound
	}
	metrics.RecordTransfer(op, time.Since(start), ignoreNotFound(err))
	return err
}

// drop closes client if it is still the current session, so Connected reports false.
func (c *SFTPClient) drop(client *sftp.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sftp == client {
		_ = c.closeLocked()
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// ListFiles returns entry names of dir.
func (c *SFTPClient) ListFiles(ctx context.Context, dir string) ([]string, error) {
	var names []string
	err := c.run(ctx, "list", func(client *sftp.Client) error {
		entries, err := client.ReadDir(dir)
		if err != nil {
			return err
		}
		names = make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return names, nil
}

// Stat describes p.
func (c *SFTPClient) Stat(ctx context.Context, p string) (FileInfo, error) {
	var info FileInfo
	err := c.run(ctx, "stat", func(client *sftp.Client) error {
		fi, err := client.Stat(p)
		if err != nil {
			return err
		}
		info = FileInfo{
			Name:    path.Base(p),
			Path:    p,
			Size:    fi.Size(),
			ModTime: fi.ModTime().UTC(),
			IsDir:   fi.IsDir(),
		}
		return nil
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, err)
	}
	return info, nil
}

// Download reads the whole file at p.
func (c *SFTPClient) Download(ctx context.Context, p string) ([]byte, error) {
	var buf bytes.Buffer
	err := c.run(ctx, "download", func(client *sftp.Client) error {
		f, err := client.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = f.WriteTo(&buf)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", p, err)
	}
	metrics.TransferBytes.Add(float64(buf.Len()))
	return buf.Bytes(), nil
}

var _ Client = (*SFTPClient)(nil)
