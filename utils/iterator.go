package utils

// Iterator 是所有迭代器(block、table、concat、merge)共用的游标协议
//
// Key/Value只能在Valid()为true时调用，否则panic；
// Next在无效时调用同样会panic，底层IO出错时返回error；
// NumActiveIterators返回当前实际打开的内部迭代器数量；
// Close释放迭代器持有的table引用。
type Iterator interface {
	Valid() bool
	Key() []byte
	Value() []byte
	Next() error
	NumActiveIterators() int
	Close() error
}
