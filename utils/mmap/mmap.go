//go:build unix

// 对syscall的封装
package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

// 封装mmap，将文件映射到用户态内存中，可以直接在返回的[]byte上使用
//
//	void *mmap(void *addr, size_t length, int prot, int flags, int fd, off_t offset);
func mmap(fd *os.File, writable bool, size int64) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	return unix.Mmap(int(fd.Fd()), 0, int(size), prot, unix.MAP_SHARED)
}

// 封装munmap，用于解除映射关系
// int munmap(void *addr, size_t length);
func munmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}

// 封装madvise，sstable是随机读，关闭预读
// int madvise(void *addr, size_t length, int advice);
func madvise(buf []byte, readahead bool) error {
	if len(buf) == 0 {
		return nil
	}
	flag := unix.MADV_NORMAL
	if !readahead {
		flag = unix.MADV_RANDOM
	}
	return unix.Madvise(buf, flag)
}
