package file

import (
	"io"
	"os"

	"lsmkv/utils/mmap"

	"github.com/pkg/errors"
)

// 用于表示一个通过mmap只读映射的文件
type MmapFile struct {
	// 映射出来的数据，文件为空时为nil
	Data []byte
	Fd   *os.File
}

// 用mmap将整个文件只读映射到内存中
func OpenMmapFileUsing(fd *os.File) (*MmapFile, error) {
	filename := fd.Name()
	fi, err := fd.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot stat file: %s", filename)
	}

	buf, err := mmap.Mmap(fd, false, fi.Size())
	if err != nil {
		return nil, errors.Wrapf(err, "while mmapping %s with size: %d", filename, fi.Size())
	}
	// sstable的block读取是随机的
	if err := mmap.Madvise(buf, false); err != nil {
		_ = mmap.Munmap(buf)
		return nil, errors.Wrapf(err, "while madvise %s", filename)
	}
	return &MmapFile{
		Data: buf,
		Fd:   fd,
	}, nil
}

// 以只读方式打开filename并映射
func OpenMmapFile(filename string) (*MmapFile, error) {
	fd, err := os.OpenFile(filename, os.O_RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open: %s", filename)
	}
	mf, err := OpenMmapFileUsing(fd)
	if err != nil {
		_ = fd.Close()
		return nil, err
	}
	return mf, nil
}

// 从off开始读取Data中sz个byte，返回的是映射内存的切片，不能修改
func (m *MmapFile) Bytes(off, sz int) ([]byte, error) {
	if off < 0 || sz < 0 || off > len(m.Data) || len(m.Data)-off < sz {
		return nil, io.ErrUnexpectedEOF
	}
	return m.Data[off : off+sz], nil
}

// 删除文件
func (m *MmapFile) Delete() error {
	if m.Fd == nil {
		return nil
	}
	name := m.Fd.Name()
	if err := m.Close(); err != nil {
		return err
	}
	if err := os.Remove(name); err != nil {
		return errors.Wrapf(err, "while removing file: %s", name)
	}
	return nil
}

// Close 取消映射并关闭文件，可以重复调用
func (m *MmapFile) Close() error {
	if m.Fd == nil {
		return nil
	}
	if err := mmap.Munmap(m.Data); err != nil {
		return errors.Wrapf(err, "while munmap file: %s", m.Fd.Name())
	}
	m.Data = nil
	err := m.Fd.Close()
	name := m.Fd.Name()
	m.Fd = nil
	return errors.Wrapf(err, "while close file: %s", name)
}

// 写入目录
func SyncDir(dir string) error {
	df, err := os.Open(dir)
	if err != nil {
		return errors.Wrapf(err, "while opening %s", dir)
	}
	if err := df.Sync(); err != nil {
		_ = df.Close()
		return errors.Wrapf(err, "while syncing %s", dir)
	}
	if err := df.Close(); err != nil {
		return errors.Wrapf(err, "while closing %s", dir)
	}
	return nil
}
