package utils

import "os"

const (
	KB = 1 << 10
	MB = 1 << 20

	// MaxLevelNum L0之外最多的层数
	MaxLevelNum = 7
)

// file
const (
	DefaultFileFlag = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	DefaultFileMode = 0666
	// 写入中的文件后缀，rename之后才对外可见
	TmpFileSuffix = ".tmp"
)
