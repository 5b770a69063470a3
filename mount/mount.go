// Package mount exposes one finished archive as a read-only FUSE
// filesystem, adapted from the teacher's cmd/bk/fuse.go. Where the
// teacher's backend stored a native directory hierarchy (DirEntry nodes
// with children), an ezbackup archive's namespace is flat: every payload
// lives at "/files/<absolute-source-path>". Mount rebuilds the directory
// tree implied by those paths once, from the /checksums index, and backs
// reads with a whole-file read the way the teacher's dirEntryBackend.
// ReadAll does.
package mount

import (
	"context"
	"io"
	"os"
	"strings"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/jonathanrlemos/ezbackup/archive"
	"github.com/jonathanrlemos/ezbackup/backup"
	"github.com/jonathanrlemos/ezbackup/crypt"
	"github.com/jonathanrlemos/ezbackup/ezerr"
	"github.com/jonathanrlemos/ezbackup/index"
)

// node is one entry in the pseudo-directory tree built from archive
// paths: either a directory with children, or a file with a known size.
// archivePath is only meaningful on file nodes, holding the logical
// archive path ("/files/...") ReadAll should extract.
type node struct {
	name        string
	children    map[string]*node
	isFile      bool
	size        int64
	archivePath string
}

func newDir(name string) *node {
	return &node{name: name, children: make(map[string]*node)}
}

// buildTree walks every path recorded in the archive's digest index that
// has a "/files/..." payload member in this archive and inserts it into a
// directory tree keyed by path component, the way pseudoAddRecursive does
// for the teacher's name-yymmdd-hhmmss hierarchy.
func buildTree(archivePath string) (*node, error) {
	checksumsPath, err := extractChecksums(archivePath)
	if err != nil {
		return nil, err
	}
	defer os.Remove(checksumsPath)

	idx, err := index.Open(checksumsPath)
	if err != nil {
		return nil, err
	}

	sizes, err := memberSizes(archivePath)
	if err != nil {
		return nil, err
	}

	root := newDir("/")
	err = idx.Iterate(func(rec index.Record) error {
		size, ok := sizes["/files"+rec.Path]
		if !ok {
			// Unchanged files are listed in /checksums but carry no
			// payload in this archive.
			return nil
		}
		insert(root, rec.Path, "/files"+rec.Path, size)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return root, nil
}

func extractChecksums(archivePath string) (string, error) {
	f, err := os.CreateTemp("", "ezbackup_mount_checksums_*")
	if err != nil {
		return "", ezerr.Wrap(ezerr.IO, err, "creating temp checksums file")
	}
	name := f.Name()
	f.Close()
	if err := archive.ExtractOne(archivePath, "/checksums", name); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

// memberSizes scans the archive once, recording the size of every
// /files member, since the digest index itself doesn't carry sizes.
func memberSizes(archivePath string) (map[string]int64, error) {
	sizes := make(map[string]int64)
	r, err := archive.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	for {
		name, err := r.Next()
		if err == io.EOF {
			return sizes, nil
		}
		if err != nil {
			return nil, err
		}
		if strings.HasPrefix(name, "/files/") {
			sizes[name] = r.Size()
		}
	}
}

func insert(root *node, path, archivePath string, size int64) {
	comps := strings.Split(strings.TrimPrefix(path, "/"), "/")
	cur := root
	for i, c := range comps {
		if c == "" {
			continue
		}
		child, ok := cur.children[c]
		if !ok {
			child = newDir(c)
			cur.children[c] = child
		}
		if i == len(comps)-1 {
			child.isFile = true
			child.size = size
			child.archivePath = archivePath
		}
		cur = child
	}
}

// Filesystem implements bazil.org/fuse's fs.FS over one archive's
// rebuilt directory tree.
type Filesystem struct {
	archivePath string
	root        *node
}

// Open builds a Filesystem over archivePath. If cipher is non-nil, the
// archive is transparently decrypted to a temp file for the lifetime of
// the mount; the returned cleanup must run when the mount ends.
func Open(archivePath string, cipher *crypt.Cipher, password []byte) (*Filesystem, func(), error) {
	plainPath, cleanup, err := backup.OpenForRead(archivePath, cipher, password)
	if err != nil {
		return nil, func() {}, err
	}
	root, err := buildTree(plainPath)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return &Filesystem{archivePath: plainPath, root: root}, cleanup, nil
}

func (fsys *Filesystem) Root() (fs.Node, error) {
	return &dirNode{fsys: fsys, n: fsys.root}, nil
}

// Serve mounts fsys at mountpoint and blocks until it is unmounted
// (matching the teacher's mountFUSE, which also blocks for the lifetime
// of the mount).
func Serve(mountpoint string, fsys *Filesystem) error {
	conn, err := fuse.Mount(
		mountpoint,
		fuse.FSName("ezbackupfs"),
		fuse.Subtype("ezbackupfs"),
		fuse.VolumeName("ezbackup"),
		fuse.ReadOnly(),
	)
	if err != nil {
		return ezerr.Wrap(ezerr.IO, err, "mounting fuse filesystem")
	}
	defer conn.Close()

	if err := fs.Serve(conn, fsys); err != nil {
		return ezerr.Wrap(ezerr.IO, err, "serving fuse filesystem")
	}

	<-conn.Ready
	if err := conn.MountError; err != nil {
		return ezerr.Wrap(ezerr.IO, err, "fuse mount")
	}
	return nil
}

type dirNode struct {
	fsys *Filesystem
	n    *node
}

func (d *dirNode) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = os.ModeDir | 0o500
	return nil
}

func (d *dirNode) Lookup(ctx context.Context, name string) (fs.Node, error) {
	child, ok := d.n.children[name]
	if !ok {
		return nil, fuse.ENOENT
	}
	if child.isFile {
		return &fileNode{fsys: d.fsys, n: child}, nil
	}
	return &dirNode{fsys: d.fsys, n: child}, nil
}

func (d *dirNode) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	var des []fuse.Dirent
	for name, child := range d.n.children {
		typ := fuse.DT_Dir
		if child.isFile {
			typ = fuse.DT_File
		}
		des = append(des, fuse.Dirent{Name: name, Type: typ})
	}
	return des, nil
}

type fileNode struct {
	fsys *Filesystem
	n    *node
}

func (f *fileNode) Attr(ctx context.Context, a *fuse.Attr) error {
	a.Mode = 0o400
	a.Size = uint64(f.n.size)
	return nil
}

func (f *fileNode) ReadAll(ctx context.Context) ([]byte, error) {
	return readWholeMember(f.fsys.archivePath, f.n.archivePath)
}

// readWholeMember buffers one member fully into memory, matching the
// teacher's dirEntryBackend.ReadAll rather than streaming; acceptable
// since FUSE's ReadAll contract already wants the whole file at once.
func readWholeMember(archivePath, logicalPath string) ([]byte, error) {
	var data []byte
	err := archive.ExtractAll(archivePath, func(name string, r io.Reader) error {
		if name != logicalPath {
			return nil
		}
		b, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	return data, err
}
