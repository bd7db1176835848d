package functions

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/bytedance/sonic"
	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

// DefaultPattern matches every file format the directory store understands
const DefaultPattern = "**/*.{js,yaml,yml,toml,json}"

const reloadDelay = 100 * time.Millisecond

// manifest is the document layout of .yaml, .toml and .json files. A file
// holds either a single function or a list under "functions".
type manifest struct {
	Name        string     `json:"name" yaml:"name" toml:"name"`
	Code        string     `json:"code" yaml:"code" toml:"code"`
	Description string     `json:"description" yaml:"description" toml:"description"`
	Functions   []Function `json:"functions" yaml:"functions" toml:"functions"`
}

// DirectoryOptions configures a Directory store
type DirectoryOptions struct {
	// Patterns are doublestar globs relative to the root
	Patterns []string
	// Watch reloads the store when files under the root change
	Watch  bool
	Logger *zap.Logger
}

// Directory serves functions read from files under a root directory.
// A .js file contributes one function named after the file; manifest
// files may contribute several.
type Directory struct {
	root     string
	patterns []string
	logger   *zap.Logger

	mu        sync.RWMutex
	functions map[string]Function

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewDirectory loads every matching file under root
func NewDirectory(root string, opts DirectoryOptions) (*Directory, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("open function directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open function directory: %s is not a directory", root)
	}

	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid function pattern %q", p)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Directory{
		root:     root,
		patterns: patterns,
		logger:   logger.Named("functions.dir"),
		done:     make(chan struct{}),
	}
	if err := d.Reload(context.Background()); err != nil {
		return nil, err
	}
	if opts.Watch {
		if err := d.watch(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Directory) Lookup(ctx context.Context, name string) (string, error) {
	fn, err := d.Get(ctx, name)
	if err != nil {
		return "", err
	}
	return fn.Code, nil
}

func (d *Directory) Get(_ context.Context, name string) (*Function, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	fn, ok := d.functions[name]
	if !ok {
		return nil, notFound(name)
	}
	return &fn, nil
}

func (d *Directory) List(_ context.Context) ([]Function, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Function, 0, len(d.functions))
	for _, fn := range d.functions {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Reload rescans the root and swaps in the new set. On error the previous
// set stays in place.
func (d *Directory) Reload(ctx context.Context) error {
	paths, err := d.scan(ctx)
	if err != nil {
		return err
	}

	functions := make(map[string]Function, len(paths))
	for _, path := range paths {
		fns, err := parseFile(path)
		if err != nil {
			return err
		}
		for _, fn := range fns {
			if prev, ok := functions[fn.Name]; ok {
				d.logger.Warn("Duplicate function name, later file wins",
					zap.String("function", fn.Name),
					zap.Time("previous_updated_at", prev.UpdatedAt),
					zap.String("path", path))
			}
			functions[fn.Name] = fn
		}
	}

	d.mu.Lock()
	d.functions = functions
	d.mu.Unlock()

	d.logger.Debug("Loaded functions", zap.String("root", d.root), zap.Int("count", len(functions)))
	return nil
}

// scan returns matching files in a stable order
func (d *Directory) scan(ctx context.Context) ([]string, error) {
	var (
		mu    sync.Mutex
		paths []string
	)
	conf := fastwalk.Config{Follow: false}

	// fastwalk calls the callback from several goroutines
	err := fastwalk.Walk(&conf, d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() || !d.matches(path) {
			return nil
		}
		mu.Lock()
		paths = append(paths, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan function directory: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

func (d *Directory) matches(path string) bool {
	rel, err := filepath.Rel(d.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range d.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

func parseFile(path string) ([]Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	modified := info.ModTime().UTC()

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".js" {
		fn := Function{
			Name:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			Code:      string(data),
			UpdatedAt: modified,
		}
		if err := ValidateFunction(fn); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []Function{fn}, nil
	}

	var doc manifest
	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	case ".toml":
		err = toml.Unmarshal(data, &doc)
	case ".json":
		err = sonic.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%s: unsupported function file type", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	fns := doc.Functions
	if doc.Name != "" || doc.Code != "" {
		fns = append([]Function{{Name: doc.Name, Code: doc.Code, Description: doc.Description}}, fns...)
	}
	for i := range fns {
		if fns[i].UpdatedAt.IsZero() {
			fns[i].UpdatedAt = modified
		}
		if err := ValidateFunction(fns[i]); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return fns, nil
}

// watch reloads the store shortly after a burst of file changes. fsnotify
// is not recursive, so every directory under the root is added.
func (d *Directory) watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch function directory: %w", err)
	}
	err = filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || !entry.IsDir() {
			return err
		}
		return watcher.Add(path)
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watch function directory: %w", err)
	}
	d.watcher = watcher

	d.wg.Add(1)
	go d.watchLoop()
	return nil
}

func (d *Directory) watchLoop() {
	defer d.wg.Done()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-d.done:
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = d.watcher.Add(event.Name)
				}
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDelay, func() {
				if err := d.Reload(context.Background()); err != nil {
					d.logger.Warn("Function reload failed, keeping previous set", zap.Error(err))
				}
			})
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.logger.Warn("Function watcher error", zap.Error(err))
		}
	}
}

func (d *Directory) Close() error {
	if d.watcher == nil {
		return nil
	}
	var err error
	d.closeOnce.Do(func() {
		close(d.done)
		err = d.watcher.Close()
		d.wg.Wait()
	})
	return err
}
