package functions

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirectoryLoadsEveryFormat(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "greet.js", "function greet(args) { return 'hi ' + args.name }")
	writeFile(t, root, "math/ops.yaml", `
functions:
  - name: add
    code: return args.a + args.b
    description: adds two numbers
  - name: sub
    code: return args.a - args.b
`)
	writeFile(t, root, "text/upper.toml", `
name = "upper"
code = "return args.s.toUpperCase()"
description = "upper-cases a string"
`)
	writeFile(t, root, "nested/deep/len.json", `{"name": "len", "code": "return args.s.length"}`)
	writeFile(t, root, "README.md", "not a function")

	d, err := NewDirectory(root, DirectoryOptions{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer d.Close()

	ctx := context.Background()
	fns, err := d.List(ctx)
	require.NoError(t, err)

	names := make([]string, len(fns))
	for i, fn := range fns {
		names[i] = fn.Name
	}
	assert.Equal(t, []string{"add", "greet", "len", "sub", "upper"}, names)

	code, err := d.Lookup(ctx, "greet")
	require.NoError(t, err)
	assert.Contains(t, code, "function greet")

	fn, err := d.Get(ctx, "add")
	require.NoError(t, err)
	assert.Equal(t, "adds two numbers", fn.Description)
	assert.False(t, fn.UpdatedAt.IsZero())

	upper, err := d.Get(ctx, "upper")
	require.NoError(t, err)
	assert.Equal(t, "return args.s.toUpperCase()", upper.Code)

	_, err = d.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirectoryPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "public/a.js", "return 1")
	writeFile(t, root, "private/b.js", "return 2")

	d, err := NewDirectory(root, DirectoryOptions{Patterns: []string{"public/**/*.js"}})
	require.NoError(t, err)

	_, err = d.Lookup(context.Background(), "a")
	assert.NoError(t, err)
	_, err = d.Lookup(context.Background(), "b")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewDirectory(root, DirectoryOptions{Patterns: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestDirectoryRejectsBadFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "broken.yaml", "name: [unterminated")

	_, err := NewDirectory(root, DirectoryOptions{})
	assert.ErrorContains(t, err, "broken.yaml")

	_, err = NewDirectory(filepath.Join(root, "nope"), DirectoryOptions{})
	assert.Error(t, err)
}

func TestDirectoryReloadKeepsPreviousSetOnError(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.js", "return 1")

	d, err := NewDirectory(root, DirectoryOptions{})
	require.NoError(t, err)

	writeFile(t, root, "two.json", "{not json")
	assert.Error(t, d.Reload(context.Background()))

	_, err = d.Lookup(context.Background(), "one")
	assert.NoError(t, err)
}

func TestDirectoryWatch(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "one.js", "return 1")

	d, err := NewDirectory(root, DirectoryOptions{Watch: true, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer d.Close()

	writeFile(t, root, "two.js", "return 2")

	require.Eventually(t, func() bool {
		_, err := d.Lookup(context.Background(), "two")
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, os.Remove(filepath.Join(root, "one.js")))
	require.Eventually(t, func() bool {
		_, err := d.Lookup(context.Background(), "one")
		return err != nil
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}
