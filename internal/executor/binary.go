package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	tferrors "github.com/savaki/tf-provisioner/internal/errors"
)

// ResolveBinary returns cfg.BinaryPath when it is a regular file, otherwise
// the first file named terraform found at most cfg.SearchDepth directories
// below cfg.SearchRoot.
func ResolveBinary(cfg Config) (string, error) {
	cfg = cfg.WithDefaults()

	if info, err := os.Stat(cfg.BinaryPath); err == nil && info.Mode().IsRegular() {
		return cfg.BinaryPath, nil
	}

	var found string
	root := filepath.Clean(cfg.SearchRoot)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// unreadable entries are skipped
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, _ := filepath.Rel(root, path)
		depth := 0
		if rel != "." {
			depth = strings.Count(rel, string(filepath.Separator)) + 1
		}

		if d.IsDir() {
			if depth >= cfg.SearchDepth {
				return fs.SkipDir
			}
			return nil
		}

		if d.Name() == BinaryName && d.Type().IsRegular() {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if found != "" {
		return found, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: unable to search %s: %v", tferrors.ErrBinaryNotFound, root, err)
	}
	return "", fmt.Errorf("%w: not at %s and not under %s", tferrors.ErrBinaryNotFound, cfg.BinaryPath, root)
}

// Stage resolves the terraform binary and copies it into the sandbox with
// execute permission. The resolved file itself is only ever read.
func Stage(ctx context.Context, cfg Config, sandbox *Sandbox) (*Tool, error) {
	cfg = cfg.WithDefaults()
	logger := zerolog.Ctx(ctx)

	src, err := ResolveBinary(cfg)
	if err != nil {
		return nil, err
	}

	scratch := sandbox.Path(binDir)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", scratch, err)
	}

	dst := filepath.Join(scratch, BinaryName)
	if err := copyFile(src, dst, 0o755); err != nil {
		return nil, fmt.Errorf("failed to stage %s: %w", src, err)
	}

	logger.Info().
		Str("source", src).
		Str("staged", dst).
		Msg("Staged terraform binary")

	return &Tool{
		path:    dst,
		dir:     sandbox.Dir(),
		env:     cfg.Environ(scratch, sandbox.Dir()),
		timeout: cfg.Timeout,
	}, nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// umask may have narrowed the mode passed to OpenFile
	return os.Chmod(dst, mode)
}
