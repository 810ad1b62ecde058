//go:build go1.4
// +build go1.4

package v1

import (
	"context"
	"sync"

	"github.com/modern-go/gls"
)

const (
	RequestID = "X-Request-ID"
	ConnID    = "Conn-ID"
	GoContext = "Go-Context"
)

// goroutine id -> *sync.Map
var localMap sync.Map

func current() *sync.Map {
	goID := gls.GoID()
	if value, ok := localMap.Load(goID); ok {
		return value.(*sync.Map)
	}
	m := &sync.Map{}
	actual, _ := localMap.LoadOrStore(goID, m)
	return actual.(*sync.Map)
}

func loadString(key string) string {
	if v, ok := current().Load(key); ok {
		return v.(string)
	}
	return ""
}

// GetLocalMap 返回当前协程的本地存储，用于跨协程传递
func GetLocalMap() *sync.Map {
	return current()
}

// PutLocalMap 将一份本地存储拷贝绑定到当前协程
func PutLocalMap(src *sync.Map) {
	if src == nil {
		return
	}
	dst := &sync.Map{}
	src.Range(func(k, v interface{}) bool {
		dst.Store(k, v)
		return true
	})
	localMap.Store(gls.GoID(), dst)
}

func PutTraceID(value string) {
	current().Store(RequestID, value)
}

func GetTraceID() string {
	return loadString(RequestID)
}

func PutConnID(value string) {
	current().Store(ConnID, value)
}

func GetConnID() string {
	return loadString(ConnID)
}

func Put(key string, value interface{}) {
	current().Store(key, value)
}

func Get(key string) interface{} {
	v, _ := current().Load(key)
	return v
}

func Clean() {
	localMap.Delete(gls.GoID())
}

func PutContext(ctx context.Context) {
	current().Store(GoContext, ctx)
}

func GetContext() context.Context {
	if v, ok := current().Load(GoContext); ok {
		return v.(context.Context)
	}
	return context.Background()
}
