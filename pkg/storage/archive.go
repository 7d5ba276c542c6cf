package storage

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/svsgo/engine/pkg/engineerr"
)

// Archive is the on-disk side of save/load named in spec.md §6's
// "persisted archive layout": a canonical directory (config/, graph/,
// data/) packed into the caller's stream. Adapted from the teacher's
// LevelDBStorage (pkg/storage/leveldb.go): instead of keying one LevelDB
// record per vector, the archive keys one record per named component
// ("config", "graph", "data/0", "data/1", ...), each an opaque byte
// blob the caller (pkg/engine) defines the encoding of.
type Archive struct {
	dir string
	db  *leveldb.DB
}

// TempArchiveDir allocates a fresh staging directory under os.TempDir
// for a save/load call, named with prefix.
func TempArchiveDir(prefix string) (string, error) {
	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return "", engineerr.Wrap(engineerr.RuntimeError, "allocating archive staging directory", err)
	}
	return dir, nil
}

// OpenArchive opens (creating if absent) a LevelDB database at dir to
// stage archive components before they are streamed out by WriteTo, or
// after they have been staged by ReadFrom.
func OpenArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, engineerr.Wrap(engineerr.RuntimeError, "creating archive staging directory", err)
	}
	db, err := leveldb.OpenFile(dir, &opt.Options{Compression: opt.SnappyCompression})
	if err != nil {
		return nil, engineerr.Wrap(engineerr.RuntimeError, "opening archive store", err)
	}
	return &Archive{dir: dir, db: db}, nil
}

// Put stages a named component (e.g. "config", "graph", "data/0").
func (a *Archive) Put(name string, value []byte) error {
	if err := a.db.Put([]byte(name), value, nil); err != nil {
		return engineerr.Wrap(engineerr.RuntimeError, "writing archive component "+name, err)
	}
	return nil
}

// Get reads back a staged component. Returns RuntimeError if absent —
// spec.md §7 treats a missing archive member as load-time corruption.
func (a *Archive) Get(name string) ([]byte, error) {
	v, err := a.db.Get([]byte(name), nil)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.RuntimeError, "missing archive component "+name, err)
	}
	return v, nil
}

// Components lists every staged component name under prefix (e.g.
// "data/" to enumerate per-cluster or per-block payloads).
func (a *Archive) Components(prefix string) ([]string, error) {
	iter := a.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	var names []string
	for iter.Next() {
		names = append(names, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, engineerr.Wrap(engineerr.RuntimeError, "enumerating archive components", err)
	}
	return names, nil
}

// Close releases the underlying LevelDB handle. Callers should remove
// the staging directory afterward if it was created solely for this
// save/load call.
func (a *Archive) Close() error {
	if err := a.db.Close(); err != nil {
		return engineerr.Wrap(engineerr.RuntimeError, "closing archive store", err)
	}
	return nil
}

// WriteTo streams the archive's on-disk LevelDB files into w as a tar
// stream, satisfying the "packages a directory into a stream" contract
// of spec.md §1's Non-goals (the caller owns the collaborator; this
// method is that collaborator's mechanism). Uses archive/tar from the
// standard library: packing a directory of already-encoded bytes has no
// third-party analogue in the teacher's stack worth reaching for.
func (a *Archive) WriteTo(w io.Writer) (int64, error) {
	tw := tar.NewWriter(w)
	defer tw.Close()

	var total int64
	err := filepath.Walk(a.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := io.Copy(tw, f)
		total += n
		return err
	})
	if err != nil {
		return total, engineerr.Wrap(engineerr.RuntimeError, "streaming archive", err)
	}
	return total, nil
}

// ReadFrom restores an archive's on-disk files from a tar stream
// previously produced by WriteTo, into dir (which must not yet hold a
// conflicting LevelDB instance).
func ReadFrom(r io.Reader, dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return engineerr.Wrap(engineerr.RuntimeError, "creating archive restore directory", err)
	}
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return engineerr.Wrap(engineerr.RuntimeError, "reading archive stream", err)
		}
		target := filepath.Join(dir, filepath.Clean(hdr.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return engineerr.Wrap(engineerr.RuntimeError, "restoring archive directory", err)
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return engineerr.Wrap(engineerr.RuntimeError, "restoring archive file "+hdr.Name, err)
		}
		if _, err := io.Copy(f, tr); err != nil {
			f.Close()
			return engineerr.Wrap(engineerr.RuntimeError, "restoring archive file "+hdr.Name, err)
		}
		f.Close()
	}
}

// RemoveStaging deletes the archive's staging directory after a
// successful WriteTo or before a fresh ReadFrom.
func RemoveStaging(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing archive staging directory: %w", err)
	}
	return nil
}
