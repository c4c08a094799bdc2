package utils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// sstable文件后缀
const sstSuffix = ".sst"

// 根据fileName获取到FID
func FID(fileName string) uint64 {
	// 将路径提取为文件的名字，也就是路径的最后一个元素
	fileName = path.Base(fileName)
	if !strings.HasSuffix(fileName, sstSuffix) {
		return 0
	}
	fileName = strings.TrimSuffix(fileName, sstSuffix)
	id, err := strconv.ParseUint(fileName, 10, 64)
	if err != nil {
		Err(err)
		return 0
	}
	return id
}

// FileNameSSTable 返回id对应的sstable文件路径
func FileNameSSTable(dir string, id uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%05d%s", id, sstSuffix))
}

// LoadIDMap 列出dir中所有sstable的id，升序
func LoadIDMap(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "while reading dir: %s", dir)
	}
	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id := FID(e.Name()); id != 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
