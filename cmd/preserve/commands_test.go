package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/preserve/pkg/preserve/logging"
)

// execute runs the CLI in-process without the digest cache.
func execute(t *testing.T, cfgPath string, args ...string) error {
	t.Helper()
	return runCLI(t, append(args, "--config", cfgPath, "--no-cache", "--no-progress", "-q", "-o", "null")...)
}

// runCLI resets every flag of the global command tree and runs args.
func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCommandsRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(func() { _ = logging.Close() })

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, "verification:\n  hash_algorithms: [sha256, md5]\n")

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "bravo")

	require.NoError(t, execute(t, cfgPath, "copy", "-r", src, "--dst", dst, "--description", "first"))
	assert.FileExists(t, filepath.Join(dst, "a.txt"))
	assert.FileExists(t, filepath.Join(dst, "sub", "b.txt"))
	assert.FileExists(t, filepath.Join(dst, "preserve_manifest_001__first.json"))

	require.NoError(t, execute(t, cfgPath, "verify", dst, "--check", "both"))
	require.NoError(t, execute(t, cfgPath, "list", dst))

	reportPath := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, execute(t, cfgPath, "verify", dst, "--check", "dest", "--report", reportPath))
	assert.FileExists(t, reportPath)

	// Restore a lost original.
	require.NoError(t, os.Remove(filepath.Join(src, "sub", "b.txt")))
	require.NoError(t, execute(t, cfgPath, "restore", dst))
	data, err := os.ReadFile(filepath.Join(src, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(data))

	// A damaged copy is a partial failure.
	writeFile(t, filepath.Join(dst, "a.txt"), "tampered")
	err = execute(t, cfgPath, "verify", dst, "--check", "dest")
	require.Error(t, err)
	assert.Equal(t, exitPartial, exitCode(err))

	// Selecting a manifest that does not exist is operational.
	err = execute(t, cfgPath, "verify", dst, "--check", "dest", "--number", "7")
	require.Error(t, err)
	assert.Equal(t, exitOperational, exitCode(err))
}

func TestMoveCommandRemovesSources(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(func() { _ = logging.Close() })

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, "paths:\n  default_style: flat\n")

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "one", "report.txt"), "1")
	writeFile(t, filepath.Join(src, "two", "report.txt"), "2")

	require.NoError(t, execute(t, cfgPath, "move", "-r", src, "--dst", dst))
	assert.NoFileExists(t, filepath.Join(src, "one", "report.txt"))
	assert.NoFileExists(t, filepath.Join(src, "two", "report.txt"))
	assert.FileExists(t, filepath.Join(dst, "preserve_manifest_001.json"))

	entries, err := os.ReadDir(dst)
	require.NoError(t, err)
	var copies int
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".txt" {
			copies++
		}
	}
	assert.Equal(t, 2, copies, "flat style keeps both same-named files")
}

func TestCopyWithoutSourcesIsOperational(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(func() { _ = logging.Close() })

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, "")

	err := execute(t, cfgPath, "copy", filepath.Join(t.TempDir(), "missing"), "--dst", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, exitOperational, exitCode(err))
}

func TestVerifyCommandReadsPastDigestCache(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(func() { _ = logging.Close() })

	cachePath := filepath.Join(t.TempDir(), "digests")
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, "cache:\n  enabled: true\n  path: "+cachePath+"\n")

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), "hello world")

	run := func(args ...string) error {
		return runCLI(t, append(args, "--config", cfgPath, "--no-progress", "-q", "-o", "null")...)
	}
	require.NoError(t, run("copy", src, "--dst", dst))
	assert.DirExists(t, cachePath)

	copied := filepath.Join(dst, "a.txt")
	info, err := os.Stat(copied)
	require.NoError(t, err)
	writeFile(t, copied, "HELLO WORLD")
	require.NoError(t, os.Chtimes(copied, info.ModTime(), info.ModTime()))

	err = run("verify", dst, "--check", "dest")
	require.Error(t, err)
	assert.Equal(t, exitPartial, exitCode(err))
}

func TestCopySourceSelection(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Cleanup(func() { _ = logging.Close() })

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, cfgPath, "")

	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, filepath.Join(src, "main.go"), "package main")
	writeFile(t, filepath.Join(src, "notes.txt"), "notes")
	writeFile(t, filepath.Join(src, "vendor", "dep.go"), "package dep")
	writeFile(t, filepath.Join(src, "skip.go"), "package skip")

	excludes := filepath.Join(t.TempDir(), "excludes.txt")
	writeFile(t, excludes, "# left out\n"+filepath.Join(src, "vendor")+"\n"+filepath.Join(src, "skip.go")+"\n")

	require.NoError(t, execute(t, cfgPath, "copy", "-r", src, "--dst", dst,
		"--load-excludes", excludes, "--regex", `\.go$`))
	assert.FileExists(t, filepath.Join(dst, "main.go"))
	assert.NoFileExists(t, filepath.Join(dst, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "skip.go"))
	assert.NoDirExists(t, filepath.Join(dst, "vendor"))
}
