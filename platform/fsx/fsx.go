// Package fsx binds disk primitives into typed tasks.
//
// Each entry point returns a task whose error row enumerates every
// distinguishable way the host filesystem can fail the operation — "path
// not found" stays distinguishable from "path denotes a directory" — and
// whose capability annotation names the disk category it exercises.
package fsx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"syscall"
	"unicode/utf8"

	"github.com/taskrow/taskrow/capability"
	"github.com/taskrow/taskrow/effect"
	"github.com/taskrow/taskrow/row"
	"github.com/taskrow/taskrow/task"
)

// NotFound reports a path whose parent (for writes) or target (for reads)
// does not exist.
type NotFound struct{ Path string }

func (v NotFound) Tag() string   { return "not_found" }
func (v NotFound) Error() string { return fmt.Sprintf("path not found: %s", v.Path) }

// IsDirectory reports a path denoting a directory where a file was expected.
type IsDirectory struct{ Path string }

func (v IsDirectory) Tag() string   { return "is_directory" }
func (v IsDirectory) Error() string { return fmt.Sprintf("path is a directory: %s", v.Path) }

// PermissionDenied reports a path the process may not touch.
type PermissionDenied struct{ Path string }

func (v PermissionDenied) Tag() string   { return "permission_denied" }
func (v PermissionDenied) Error() string { return fmt.Sprintf("permission denied: %s", v.Path) }

// InvalidUTF8 reports file contents that do not decode as UTF-8.
type InvalidUTF8 struct{ Path string }

func (v InvalidUTF8) Tag() string   { return "invalid_utf8" }
func (v InvalidUTF8) Error() string { return fmt.Sprintf("contents are not valid UTF-8: %s", v.Path) }

// IOFailed is the row's extension slot: any host failure not covered by a
// more specific variant, kept classifiable so the mapping stays total.
type IOFailed struct {
	Path string
	Err  error
}

func (v IOFailed) Tag() string   { return "io_failed" }
func (v IOFailed) Error() string { return fmt.Sprintf("io failed: %s: %v", v.Path, v.Err) }
func (v IOFailed) Unwrap() error { return v.Err }

// WriteRow is the declared failure set of disk writes.
var WriteRow = row.Of(NotFound{}, IsDirectory{}, PermissionDenied{}, IOFailed{})

// ReadRow is the declared failure set of disk reads.
var ReadRow = row.MustUnion(WriteRow, row.Of(InvalidUTF8{}))

// WriteDecl declares the annotation of write continuations for AndThen.
var WriteDecl = task.Decl{
	Row:  WriteRow,
	Caps: capability.NewSet(capability.Write(capability.ResourceDisk)),
}

// ReadDecl declares the annotation of read continuations for AndThen.
var ReadDecl = task.Decl{
	Row:  ReadRow,
	Caps: capability.NewSet(capability.Read(capability.ResourceDisk)),
}

// WriteUTF8 returns a task that writes contents to path as UTF-8, creating
// the file if needed. Capability: write/disk. Nothing touches the disk
// until the task is run.
func WriteUTF8(path, contents string) task.Task[task.Unit] {
	eff := effect.NewFunc(
		"fsx.write_utf8",
		capability.Write(capability.ResourceDisk),
		func(ctx context.Context) effect.Outcome {
			return effect.Outcome{Err: os.WriteFile(path, []byte(contents), 0o644)}
		},
	)
	return task.Lift(eff, WriteRow, func(out effect.Outcome) (task.Unit, row.Variant) {
		if out.Err == nil {
			return task.Unit{}, nil
		}
		return task.Unit{}, classifyPathErr(path, out.Err)
	})
}

// ReadUTF8 returns a task that reads path and decodes it as UTF-8.
// Capability: read/disk.
func ReadUTF8(path string) task.Task[string] {
	eff := effect.NewFunc(
		"fsx.read_utf8",
		capability.Read(capability.ResourceDisk),
		func(ctx context.Context) effect.Outcome {
			raw, err := os.ReadFile(path)
			return effect.Outcome{Value: raw, Err: err}
		},
	)
	return task.Lift(eff, ReadRow, func(out effect.Outcome) (string, row.Variant) {
		raw, err := effect.TypedValue[[]byte](out)
		if err != nil {
			return "", classifyPathErr(path, err)
		}
		if !utf8.Valid(raw) {
			return "", InvalidUTF8{Path: path}
		}
		return string(raw), nil
	})
}

// classifyPathErr maps a host filesystem error onto the row. Order matters:
// EISDIR must win over the generic permission check some platforms report
// for directories.
func classifyPathErr(path string, err error) row.Variant {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotFound{Path: path}
	case errors.Is(err, syscall.EISDIR):
		return IsDirectory{Path: path}
	case errors.Is(err, fs.ErrPermission):
		if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
			return IsDirectory{Path: path}
		}
		return PermissionDenied{Path: path}
	default:
		return IOFailed{Path: path, Err: err}
	}
}
