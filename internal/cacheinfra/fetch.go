package cacheinfra

import (
	"context"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// validateFetchFn checks that fetchFn has the signature func(context.Context) (T, error).
func validateFetchFn(fetchFn any) error {
	if fetchFn == nil {
		return &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}

	fnValue := reflect.ValueOf(fetchFn)
	fnType := fnValue.Type()

	if fnType.Kind() != reflect.Func {
		return &ConfigError{Field: "fetchFn", Message: "must be a function"}
	}

	if fnValue.IsNil() {
		return &ConfigError{Field: "fetchFn", Message: "cannot be nil"}
	}

	if fnType.NumIn() != 1 || fnType.NumOut() != 2 {
		return &ConfigError{Field: "fetchFn", Message: "must have signature func(context.Context) (T, error)"}
	}

	if !fnType.In(0).Implements(contextType) {
		return &ConfigError{Field: "fetchFn", Message: "first parameter must be context.Context"}
	}

	if !fnType.Out(1).Implements(errorType) {
		return &ConfigError{Field: "fetchFn", Message: "second return value must be error"}
	}

	return nil
}

// fetchResultType returns T for a validated func(context.Context) (T, error).
func fetchResultType(fetchFn any) reflect.Type {
	return reflect.TypeOf(fetchFn).Out(0)
}

// callFetchFunction invokes a validated fetch function of any result type.
func callFetchFunction(ctx context.Context, fetchFn any) (any, error) {
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn(ctx)
	}

	results := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})

	var result any
	if value := results[0]; value.IsValid() && value.CanInterface() {
		result = value.Interface()
	}

	var err error
	if errValue := results[1]; errValue.IsValid() && !errValue.IsNil() {
		err = errValue.Interface().(error)
	}

	return result, err
}
