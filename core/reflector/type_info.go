// Package reflector provides type reflection utilities with caching.
// Event payloads without an explicit EventType() are named from here.
package reflector

import (
	"path"
	"reflect"
	"sync"
)

// maxCacheSize bounds the type cache. The number of event types in a program
// is small, so the cache is simply cleared if it is ever exceeded.
const maxCacheSize = 1024

var (
	muCache sync.RWMutex
	cache   = make(map[reflect.Type]TypeInfo)
)

// TypeInfo holds metadata about a reflected type.
type TypeInfo struct {
	Name  string       // fully qualified: "pkg/path.TypeName"
	Short string       // package name and type: "path.TypeName"
	Type  reflect.Type // element type for pointers
}

// TypeInfoOf returns TypeInfo for the dynamic type of x.
func TypeInfoOf(x any) TypeInfo {
	return TypeInfoForType(reflect.TypeOf(x))
}

// TypeInfoFor returns TypeInfo for type parameter T.
func TypeInfoFor[T any]() TypeInfo {
	return TypeInfoForType(reflect.TypeFor[T]())
}

// TypeInfoForType returns TypeInfo for t. Pointer types are described by
// their element type, so T and *T share one name.
func TypeInfoForType(t reflect.Type) TypeInfo {
	if t == nil {
		return TypeInfo{}
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	muCache.RLock()
	ti, ok := cache[t]
	muCache.RUnlock()
	if ok {
		return ti
	}

	ti = TypeInfo{Type: t}
	if pkg := t.PkgPath(); pkg != "" {
		ti.Name = pkg + "." + t.Name()
		ti.Short = path.Base(pkg) + "." + t.Name()
	} else {
		ti.Name = t.String()
		ti.Short = t.String()
	}

	muCache.Lock()
	if existing, ok := cache[t]; ok {
		muCache.Unlock()
		return existing
	}
	if len(cache) >= maxCacheSize {
		cache = make(map[reflect.Type]TypeInfo)
	}
	cache[t] = ti
	muCache.Unlock()

	return ti
}
