package engine

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/jxskiss/base62"
)

// idGenerator 生成紧凑且进程内唯一的客户端订单ID。
// 毫秒时间戳加单调计数器，base62编码后远低于交易所36字符的上限。
type idGenerator struct {
	prefix  string
	counter atomic.Uint64
}

func newIDGenerator(prefix string) *idGenerator {
	g := &idGenerator{prefix: prefix}
	g.counter.Store(uint64(time.Now().UnixNano()))
	return g
}

func (g *idGenerator) Next() string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(time.Now().UnixMilli()))
	binary.BigEndian.PutUint64(buf[8:], g.counter.Add(1))
	return g.prefix + base62.EncodeToString(buf[:])
}
