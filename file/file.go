package file

import (
	"os"
	"path/filepath"

	"lsmkv/utils"

	"github.com/pkg/errors"
)

// Object 是一个写入一次之后只读的文件，sstable通过它做随机区间读取
type Object struct {
	path string
	size int64
	mf   *MmapFile
}

// Create 将data完整写入path，先写到临时文件再rename，失败时path下不会留下任何文件
func Create(path string, data []byte) (*Object, error) {
	tmp := path + utils.TmpFileSuffix
	fd, err := os.OpenFile(tmp, utils.DefaultFileFlag, utils.DefaultFileMode)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create: %s", tmp)
	}
	cleanup := func() {
		_ = fd.Close()
		_ = os.Remove(tmp)
	}

	if _, err := fd.Write(data); err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "while writing %d bytes to %s", len(data), tmp)
	}
	if err := fd.Sync(); err != nil {
		cleanup()
		return nil, errors.Wrapf(err, "while syncing %s", tmp)
	}
	if err := fd.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil, errors.Wrapf(err, "while closing %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, errors.Wrapf(err, "while renaming %s to %s", tmp, path)
	}
	if err := SyncDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return Open(path)
}

// Open 只读打开一个已经存在的文件
func Open(path string) (*Object, error) {
	mf, err := OpenMmapFile(path)
	if err != nil {
		return nil, err
	}
	return &Object{
		path: path,
		size: int64(len(mf.Data)),
		mf:   mf,
	}, nil
}

// Read 读取[off, off+n)，越界返回io.ErrUnexpectedEOF
func (o *Object) Read(off, n int) ([]byte, error) {
	buf, err := o.mf.Bytes(off, n)
	if err != nil {
		return nil, errors.Wrapf(err, "while reading %s at offset: %d, len: %d", o.path, off, n)
	}
	return buf, nil
}

func (o *Object) Size() int64 {
	return o.size
}

func (o *Object) Path() string {
	return o.path
}

// Close 只关闭文件，不删除
func (o *Object) Close() error {
	return o.mf.Close()
}

// Delete 关闭并删除文件
func (o *Object) Delete() error {
	return o.mf.Delete()
}
