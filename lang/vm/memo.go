package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dolthub/swiss"
)

// memoCache is the per-closure memoization cache, keyed by a serialized
// argument vector and backed by github.com/dolthub/swiss's open-addressing
// hash map.
type memoCache struct {
	m *swiss.Map[string, Value]
}

func newMemoCache() *memoCache {
	return &memoCache{m: swiss.NewMap[string, Value](8)}
}

func (c *memoCache) get(key string) (Value, bool) {
	return c.m.Get(key)
}

func (c *memoCache) put(key string, v Value) {
	c.m.Put(key, v)
}

// memoKey derives a total, stable string key for an argument vector:
// numbers and strings are serialized by value, closures and arrays by
// pointer identity, so two calls with "equal" mutable arguments are only
// treated as the same memoized call if they are the very same array or
// closure value.
func memoKey(args []Value) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		writeMemoKeyElem(&b, a)
	}
	return b.String()
}

func writeMemoKeyElem(b *strings.Builder, v Value) {
	switch x := v.(type) {
	case Int:
		b.WriteString("i")
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case Float:
		b.WriteString("f")
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 64))
	case Bool:
		b.WriteString("b")
		b.WriteString(strconv.FormatBool(bool(x)))
	case String:
		b.WriteString("s")
		b.WriteString(strconv.Itoa(len(x)))
		b.WriteByte(':')
		b.WriteString(string(x))
	case *Closure:
		fmt.Fprintf(b, "c%p", x)
	case *Array:
		fmt.Fprintf(b, "a%p", x)
	default:
		b.WriteString(v.Type())
	}
}
