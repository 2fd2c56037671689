package reflector

import (
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type testStruct struct {
	Name string
}

type anotherStruct struct {
	Value int
}

const testStructName = "github.com/codewandler/esk/core/reflector.testStruct"

func TestTypeInfoOf(t *testing.T) {
	ti := TypeInfoOf(testStruct{Name: "test"})
	require.Equal(t, testStructName, ti.Name)
	require.Equal(t, "reflector.testStruct", ti.Short)
	require.Equal(t, "testStruct", ti.Type.Name())
}

func TestTypeInfoOf_Pointer(t *testing.T) {
	ti := TypeInfoOf(&testStruct{Name: "test"})
	require.Equal(t, testStructName, ti.Name)
	require.NotEqual(t, reflect.Pointer, ti.Type.Kind())
}

func TestTypeInfoFor(t *testing.T) {
	require.Equal(t, testStructName, TypeInfoFor[testStruct]().Name)
	require.Equal(t, testStructName, TypeInfoFor[*testStruct]().Name)
}

func TestTypeInfoForType(t *testing.T) {
	rt := reflect.TypeFor[testStruct]()
	ti := TypeInfoForType(rt)
	require.Equal(t, testStructName, ti.Name)
	require.Equal(t, rt, ti.Type)

	require.Equal(t, TypeInfo{}, TypeInfoForType(nil))
}

func TestTypeInfoForType_Builtin(t *testing.T) {
	ti := TypeInfoFor[string]()
	require.Equal(t, "string", ti.Name)
	require.Equal(t, "string", ti.Short)
}

func TestConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = TypeInfoOf(testStruct{})
				_ = TypeInfoFor[anotherStruct]()
				_ = TypeInfoForType(reflect.TypeFor[string]())
			}
		}()
	}
	wg.Wait()
}

func TestCacheHit(t *testing.T) {
	muCache.Lock()
	cache = make(map[reflect.Type]TypeInfo)
	muCache.Unlock()

	ti1 := TypeInfoOf(testStruct{})
	ti2 := TypeInfoOf(&testStruct{})
	require.Equal(t, ti1, ti2)

	muCache.RLock()
	_, ok := cache[reflect.TypeFor[testStruct]()]
	n := len(cache)
	muCache.RUnlock()
	require.True(t, ok)
	require.Equal(t, 1, n, "pointer and value share one entry")
}
