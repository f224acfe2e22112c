// Killfeed - Deadside Server Log Ingestion and Player Statistics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/killfeed

package transfer

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

type memFile struct {
	data    []byte
	modTime time.Time
}

// MemClient is an in-memory Client. Directories exist implicitly for every
// stored file. It is used by tests and by dry runs against captured logs.
type MemClient struct {
	mu         sync.Mutex
	files      map[string]memFile
	failures   map[string]error
	connectErr error
	connected  bool

	connects  int
	downloads int
}

// NewMemClient creates an empty, unconnected client.
func NewMemClient() *MemClient {
	return &MemClient{
		files:    make(map[string]memFile),
		failures: make(map[string]error),
	}
}

func cleanRemote(p string) string {
	return path.Clean("/" + strings.TrimPrefix(p, "/"))
}

// Put stores data at p with the given modification time.
func (m *MemClient) Put(p string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[cleanRemote(p)] = memFile{data: append([]byte(nil), data...), modTime: modTime.UTC()}
}

// Append adds data to the file at p, creating it if needed, and sets its modification time.
func (m *MemClient) Append(p string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cleanRemote(p)
	f := m.files[key]
	f.data = append(f.data, data...)
	f.modTime = modTime.UTC()
	m.files[key] = f
}

// Delete removes the file at p.
func (m *MemClient) Delete(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, cleanRemote(p))
}

// FailPath makes every operation on p return err until cleared with a nil err.
func (m *MemClient) FailPath(p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, cleanRemote(p))
		return
	}
	m.failures[cleanRemote(p)] = err
}

// FailConnect makes Connect return err until cleared with a nil err.
func (m *MemClient) FailConnect(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectErr = err
}

// Drop simulates a lost connection.
func (m *MemClient) Drop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

// Connects returns how many successful Connect calls were made.
func (m *MemClient) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// Downloads returns how many successful Download calls were made.
func (m *MemClient) Downloads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downloads
}

// Connect marks the client connected.
func (m *MemClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	if !m.connected {
		m.connected = true
		m.connects++
	}
	return nil
}

// Connected reports the simulated connection state.
func (m *MemClient) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Close marks the client disconnected.
func (m *MemClient) Close() error {
	m.Drop()
	return nil
}

// check must be called with mu held.
func (m *MemClient) check(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.connected {
		return ErrNotConnected
	}
	if err := m.failures[p]; err != nil {
		return err
	}
	return nil
}

func (m *MemClient) isDirLocked(dir string) bool {
	if dir == "/" {
		return true
	}
	prefix := dir + "/"
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// ListFiles returns the sorted direct children of dir.
func (m *MemClient) ListFiles(ctx context.Context, dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dir = cleanRemote(dir)
	if err := m.check(ctx, dir); err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	if !m.isDirLocked(dir) {
		return nil, fmt.Errorf("list %s: %w", dir, ErrNotFound)
	}

	prefix := strings.TrimSuffix(dir, "/") + "/"
	seen := make(map[string]struct{})
	names := make([]string, 0)
	for p := range m.files {
		rest, ok := strings.CutPrefix(p, prefix)
		if !ok {
			continue
		}
		name, _, _ := strings.Cut(rest, "/")
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Stat describes p. Directory mod times are the newest mod time below them.
func (m *MemClient) Stat(ctx context.Context, p string) (FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = cleanRemote(p)
	if err := m.check(ctx, p); err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, err)
	}
	if f, ok := m.files[p]; ok {
		return FileInfo{Name: path.Base(p), Path: p, Size: int64(len(f.data)), ModTime: f.modTime}, nil
	}
	if !m.isDirLocked(p) {
		return FileInfo{}, fmt.Errorf("stat %s: %w", p, ErrNotFound)
	}
	var newest time.Time
	prefix := strings.TrimSuffix(p, "/") + "/"
	for fp, f := range m.files {
		if strings.HasPrefix(fp, prefix) && f.modTime.After(newest) {
			newest = f.modTime
		}
	}
	return FileInfo{Name: path.Base(p), Path: p, ModTime: newest, IsDir: true}, nil
}

// Download returns a copy of the file at p.
func (m *MemClient) Download(ctx context.Context, p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = cleanRemote(p)
	if err := m.check(ctx, p); err != nil {
		return nil, fmt.Errorf("download %s: %w", p, err)
	}
	f, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("download %s: %w", p, ErrNotFound)
	}
	m.downloads++
	return append([]byte(nil), f.data...), nil
}

var _ Client = (*MemClient)(nil)
