// Package assert holds construction-time checks for programmer errors.
package assert

import (
	"fmt"
	"reflect"
	"time"
)

// NotNil panics if value is nil, including typed nil pointers stored in an interface.
func NotNil(value any) {
	if value == nil {
		panic("expected value to be not nil")
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Func, reflect.Chan, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			panic(fmt.Sprintf("expected %s to be not nil", rv.Type()))
		}
	}
}

func NotEmptyStr(str string) {
	if str == "" {
		panic("expected string to be non-empty")
	}
}

func NonNegative(name string, d time.Duration) {
	if d < 0 {
		panic(fmt.Sprintf("expected %s to be non-negative, got %s", name, d))
	}
}
