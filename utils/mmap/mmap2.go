// 对外暴露的mmap类
package mmap

import "os"

// Mmap 映射fd的前size个字节，size为0时返回nil
func Mmap(fd *os.File, writable bool, size int64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	return mmap(fd, writable, size)
}

func Munmap(data []byte) error {
	return munmap(data)
}

func Madvise(buf []byte, readahead bool) error {
	return madvise(buf, readahead)
}
