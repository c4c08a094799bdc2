package utils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	gopath = path.Join(os.Getenv("GOPATH"), "src") + "/"
)

var (
	// ErrKeyNotFound key不存在
	ErrKeyNotFound = errors.New("Key not found")
	// ErrEmptyKey 写入了空的key
	ErrEmptyKey = errors.New("Key cannot be empty")
	// ErrEmptyBlock 对没有entry的builder执行了Build
	ErrEmptyBlock = errors.New("Block should not be empty")
	// ErrEmptyTable 对没有entry的tableBuilder执行了Build
	ErrEmptyTable = errors.New("Table should not be empty")
	// ErrBlockReject 新的block拒绝了entry
	ErrBlockReject = errors.New("Fresh block rejected entry")
	// ErrInvalidIterator 在无效的迭代器上读取了key/value
	ErrInvalidIterator = errors.New("Iterator is not valid")
	// ErrCorruptedBlock block数据损坏
	ErrCorruptedBlock = errors.New("Block data is corrupted")
	// ErrCorruptedTable sstable数据损坏
	ErrCorruptedTable = errors.New("Table data is corrupted")
	// ErrStaleTask compaction task已经和当前的level不一致
	ErrStaleTask = errors.New("Compaction task does not match levels")
	// ErrClosed levelManager已经关闭
	ErrClosed = errors.New("Level manager is closed")
)

// Panic 如果err不为空就panic
func Panic(err error) {
	if err != nil {
		panic(err)
	}
}

// CondPanic 满足条件就panic
func CondPanic(condition bool, err error) {
	if condition {
		Panic(err)
	}
}

func AssertTrue(b bool) {
	if !b {
		panic(errors.Errorf("Assert failed"))
	}
}

func AssertTruef(b bool, format string, args ...interface{}) {
	if !b {
		panic(errors.Errorf(format, args...))
	}
}

func location(deep int, fullPath bool) string {
	_, file, line, ok := runtime.Caller(deep)
	if !ok {
		file = "???"
		line = 0
	}

	if fullPath {
		if strings.HasPrefix(file, gopath) {
			file = file[len(gopath):]
		}
	} else {
		file = filepath.Base(file)
	}
	return file + ":" + strconv.Itoa(line)
}

// Err 打印出错位置，原样返回err
func Err(err error) error {
	if err != nil {
		fmt.Printf("%s %s\n", location(2, true), err)
	}
	return err
}

// WarpErr 合并多个error，全部为nil时返回nil
func WarpErr(errs ...error) error {
	var res error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if res == nil {
			res = err
			continue
		}
		res = errors.WithMessage(res, err.Error())
	}
	return res
}
