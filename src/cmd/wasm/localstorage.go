//go:build js && wasm

package main

import (
	"context"
	"syscall/js"

	"ait-main/src/internal/storage"
)

// localStorageKV keeps blobs as strings in window.localStorage.
type localStorageKV struct {
	ls js.Value
}

func newLocalStorageKV() (*localStorageKV, error) {
	ls := js.Global().Get("localStorage")
	if ls.IsUndefined() || ls.IsNull() {
		return nil, errNoLocalStorage
	}
	return &localStorageKV{ls: ls}, nil
}

func (kv *localStorageKV) Get(_ context.Context, key string) ([]byte, error) {
	v := kv.ls.Call("getItem", key)
	if v.IsNull() || v.IsUndefined() {
		return nil, storage.ErrNotFound
	}
	return []byte(v.String()), nil
}

func (kv *localStorageKV) Set(_ context.Context, key string, value []byte) (err error) {
	// setItem throws QuotaExceededError when the origin is full
	defer func() {
		if r := recover(); r != nil {
			err = &quotaError{key: key, cause: r}
		}
	}()
	kv.ls.Call("setItem", key, string(value))
	return nil
}

func (kv *localStorageKV) Delete(_ context.Context, key string) error {
	kv.ls.Call("removeItem", key)
	return nil
}

func (kv *localStorageKV) Close() error { return nil }
