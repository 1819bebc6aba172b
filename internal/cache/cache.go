package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const audioExt = ".audio"

// ResourceDir is the directory holding one downloaded audio file per queue item.
// Files are named after the owning item id so rooms never collide.
type ResourceDir struct {
	root string
	tmp  string
}

func NewResourceDir(root string) (*ResourceDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", root)
	}
	d := &ResourceDir{root: abs, tmp: filepath.Join(abs, "tmp")}
	if err := os.MkdirAll(d.tmp, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create %s", d.tmp)
	}
	return d, nil
}

func (d *ResourceDir) Root() string { return d.root }

func (d *ResourceDir) PathFor(itemID int64) string {
	return filepath.Join(d.root, strconv.FormatInt(itemID, 10)+audioExt)
}

// TempPath returns a fresh download target inside the tmp dir; concurrent
// attempts for the same item never share a file.
func (d *ResourceDir) TempPath(itemID int64) string {
	return filepath.Join(d.tmp, fmt.Sprintf("%d-%s.part", itemID, uuid.NewString()))
}

// ItemIDFor reports which item a file name in the root belongs to.
func (d *ResourceDir) ItemIDFor(name string) (int64, bool) {
	base, ok := strings.CutSuffix(name, audioExt)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (d *ResourceDir) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// Commit moves a finished download to its final path. Empty downloads are discarded.
func (d *ResourceDir) Commit(tmp, finalPath string) error {
	info, err := os.Stat(tmp)
	if err != nil {
		return errors.Wrap(err, "stat download")
	}
	if info.Size() == 0 {
		_ = os.Remove(tmp)
		return errors.Newf("download %s is empty", filepath.Base(tmp))
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "commit download")
	}
	return nil
}
