// Package fileops implements the primitive file operations against resolved
// absolute paths: stat, checksum, list, manifest, rename, delete, mkdir,
// rmdir, and the staged upload / streamed download state machines.
//
// Every function takes a pre-resolved absolute path; path validation is the
// resolver's job and does not happen twice here.
package fileops

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/jeffvan302/fileharbor/pkg/harbor"
	"github.com/jeffvan302/fileharbor/pkg/wire"
)

// StagingSuffix is appended to the final path to form the upload staging
// path. Staging files are the only mutable artifacts written outside final
// file content.
const StagingSuffix = ".partial"

// EmptyDigest is the SHA-256 of the empty string, the digest of a zero-byte
// file.
const EmptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// mapOSError converts an os/fs error to the matching harbor kind.
func mapOSError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return harbor.E(harbor.KindNotFound, op, path, err)
	case errors.Is(err, fs.ErrExist):
		return harbor.E(harbor.KindAlreadyExists, op, path, err)
	case errors.Is(err, syscall.ENOSPC):
		return harbor.E(harbor.KindDiskFull, op, path, err)
	case errors.Is(err, syscall.ENOTEMPTY):
		return harbor.E(harbor.KindInvalidArgument, op, path, err)
	default:
		return harbor.E(harbor.KindInternal, op, path, err)
	}
}

// HashFile computes the streamed SHA-256 digest of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", mapOSError("checksum", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", harbor.E(harbor.KindInternal, "checksum", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists reports whether the path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Stat returns size, digest and mtime for a file. Directories are rejected
// with invalid-argument; stat of a directory is a LIST, not a STAT.
func Stat(path string) (*wire.StatResponse, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, mapOSError("stat", path, err)
	}
	if info.IsDir() {
		return nil, harbor.E(harbor.KindInvalidArgument, "stat", path)
	}
	digest, err := HashFile(path)
	if err != nil {
		return nil, err
	}
	return &wire.StatResponse{
		Size:   uint64(info.Size()),
		Digest: digest,
		Mtime:  info.ModTime().Unix(),
	}, nil
}

// Delete removes a file. Deleting a missing file fails with not-found;
// it never succeeds silently. Directories are rejected; use Rmdir.
func Delete(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return mapOSError("delete", path, err)
	}
	if info.IsDir() {
		return harbor.E(harbor.KindInvalidArgument, "delete", path)
	}
	if err := os.Remove(path); err != nil {
		return mapOSError("delete", path, err)
	}
	return nil
}

// Rename moves from -> to. Atomic where the filesystem provides it.
// The destination must not already exist.
func Rename(from, to string) error {
	if _, err := os.Lstat(from); err != nil {
		return mapOSError("rename", from, err)
	}
	if Exists(to) {
		return harbor.E(harbor.KindAlreadyExists, "rename", to)
	}
	if err := os.Rename(from, to); err != nil {
		return mapOSError("rename", from, err)
	}
	return nil
}

// Mkdir creates the directory and any missing parents. Creating an
// existing directory succeeds.
func Mkdir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return mapOSError("mkdir", path, err)
	}
	return nil
}

// Rmdir removes a directory. With recursive=false it fails when the
// directory is not empty.
func Rmdir(path string, recursive bool) error {
	info, err := os.Lstat(path)
	if err != nil {
		return mapOSError("rmdir", path, err)
	}
	if !info.IsDir() {
		return harbor.E(harbor.KindInvalidArgument, "rmdir", path)
	}
	if recursive {
		if err := os.RemoveAll(path); err != nil {
			return mapOSError("rmdir", path, err)
		}
		return nil
	}
	if err := os.Remove(path); err != nil {
		return mapOSError("rmdir", path, err)
	}
	return nil
}

// List enumerates entries under root/rel. Entries are relative paths with
// forward slashes, sorted, excluding staging files. Digests are not
// computed; that is Manifest's job.
func List(root, path string, recursive bool) ([]wire.Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, mapOSError("list", path, err)
	}
	if !info.IsDir() {
		return nil, harbor.E(harbor.KindInvalidArgument, "list", path)
	}

	var entries []wire.Entry
	if recursive {
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if p == path {
				return nil
			}
			return appendEntry(&entries, root, p, d)
		})
	} else {
		var dirEntries []fs.DirEntry
		dirEntries, err = os.ReadDir(path)
		if err == nil {
			for _, d := range dirEntries {
				if e := appendEntry(&entries, root, filepath.Join(path, d.Name()), d); e != nil {
					err = e
					break
				}
			}
		}
	}
	if err != nil {
		return nil, mapOSError("list", path, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// appendEntry converts one dir entry, skipping staging files.
func appendEntry(entries *[]wire.Entry, root, p string, d fs.DirEntry) error {
	if filepath.Ext(d.Name()) == StagingSuffix {
		return nil
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return err
	}
	info, err := d.Info()
	if err != nil {
		return err
	}
	kind := "file"
	size := uint64(info.Size())
	if d.IsDir() {
		kind = "dir"
		size = 0
	}
	*entries = append(*entries, wire.Entry{
		Path:  filepath.ToSlash(rel),
		Kind:  kind,
		Size:  size,
		Mtime: info.ModTime().Unix(),
	})
	return nil
}

// Manifest is List(recursive=true) plus a streamed digest per file.
func Manifest(root, path string) ([]wire.Entry, error) {
	entries, err := List(root, path, true)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].Kind != "file" {
			continue
		}
		digest, err := HashFile(filepath.Join(root, filepath.FromSlash(entries[i].Path)))
		if err != nil {
			return nil, err
		}
		entries[i].Digest = digest
	}
	return entries, nil
}
