package client

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/llmspell/spellkernel/src/kernel/internal/fs"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const _debounceTimeout = 50 * time.Millisecond

// TokenEntry is one pre-provisioned client in the tokens file.
type TokenEntry struct {
	ID                      string `yaml:"id" json:"id"`
	Token                   string `yaml:"token" json:"token"`
	MaxConcurrentExecutions int    `yaml:"maxConcurrentExecutions" json:"maxConcurrentExecutions"`
	ExecutionTimeoutMs      int    `yaml:"executionTimeoutMs" json:"executionTimeoutMs"`
	MaxMemoryBytes          uint64 `yaml:"maxMemoryBytes" json:"maxMemoryBytes"`
}

type tokensFile struct {
	Clients []TokenEntry `yaml:"clients"`
}

// provisioner keeps the tokens file in memory and reloads it when it changes on disk.
type provisioner struct {
	path     string
	fs       fs.KernelFS
	logger   *zap.SugaredLogger
	onReload func(map[string]TokenEntry)

	mu      sync.RWMutex
	entries map[string]TokenEntry

	watcher *fsnotify.Watcher
	closer  chan struct{}
	done    chan struct{}

	debounceMu sync.Mutex
	debounce   *time.Timer
}

func newProvisioner(path string, kfs fs.KernelFS, logger *zap.SugaredLogger, onReload func(map[string]TokenEntry)) *provisioner {
	return &provisioner{
		path:     path,
		fs:       kfs,
		logger:   logger.With("tokensFile", path),
		onReload: onReload,
		entries:  map[string]TokenEntry{},
	}
}

// ParseTokens reads a tokens file. JSON is accepted as well since it is valid YAML.
func ParseTokens(data []byte) (map[string]TokenEntry, error) {
	var f tokensFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing tokens file: %w", err)
	}
	entries := make(map[string]TokenEntry, len(f.Clients))
	for i, c := range f.Clients {
		if c.ID == "" || c.Token == "" {
			return nil, fmt.Errorf("tokens file entry %d needs both id and token", i)
		}
		if _, dup := entries[c.Token]; dup {
			return nil, fmt.Errorf("tokens file entry %d (%s) reuses a token", i, c.ID)
		}
		entries[c.Token] = c
	}
	return entries, nil
}

func (p *provisioner) load() error {
	data, err := p.fs.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("reading tokens file: %w", err)
	}
	entries, err := ParseTokens(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.entries = entries
	p.mu.Unlock()
	p.logger.Infow("loaded tokens file", "clients", len(entries))
	return nil
}

func (p *provisioner) lookup(token string) (TokenEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[token]
	return e, ok
}

func (p *provisioner) snapshot() map[string]TokenEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]TokenEntry, len(p.entries))
	for k, v := range p.entries {
		out[k] = v
	}
	return out
}

func (p *provisioner) start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Warnf("File watcher unavailable, tokens file will not be reloaded: %v", err)
		return nil
	}
	// Watch the directory so that atomic replacements of the file are seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		p.logger.Warnf("Failed to watch tokens file: %v", err)
		return nil
	}
	p.watcher = watcher
	p.closer = make(chan struct{})
	p.done = make(chan struct{})
	go p.handleChanges()
	return nil
}

func (p *provisioner) stop() error {
	if p.watcher == nil {
		return nil
	}
	close(p.closer)
	<-p.done
	return nil
}

func (p *provisioner) handleChanges() {
	defer close(p.done)
	target := filepath.Clean(p.path)
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			p.handleDebounce()
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warnf("Failure in tokens file watcher: %v", err)
		case <-p.closer:
			p.debounceMu.Lock()
			if p.debounce != nil {
				p.debounce.Stop()
				p.debounce = nil
			}
			p.debounceMu.Unlock()
			if err := p.watcher.Close(); err != nil {
				p.logger.Warnf("Failed to close tokens file watcher: %v", err)
			}
			return
		}
	}
}

func (p *provisioner) handleDebounce() {
	p.debounceMu.Lock()
	defer p.debounceMu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(_debounceTimeout, p.reload)
}

func (p *provisioner) reload() {
	p.debounceMu.Lock()
	p.debounce = nil
	p.debounceMu.Unlock()

	if err := p.load(); err != nil {
		// Keep serving the previous tokens.
		p.logger.Warnf("Failed to reload tokens file: %v", err)
		return
	}
	p.onReload(p.snapshot())
}
