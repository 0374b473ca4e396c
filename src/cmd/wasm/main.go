//go:build js && wasm

// Command wasm exposes the memory to a browser page. The store lives in
// window.localStorage under "ait_history", the same blob the server writes.
package main

import (
	"context"
	"errors"
	"fmt"
	"syscall/js"

	"ait-main/src/internal/binding"
	"ait-main/src/internal/memory"
	"ait-main/src/internal/storage"
)

// ada-002 width, used when aitLoad is called without one
const defaultDims = 1536

var (
	errNoLocalStorage = errors.New("localStorage is not available")
	errNotLoaded      = errors.New("history not loaded, call aitLoad first")
	errNotFound       = errors.New("experience not found")
)

type quotaError struct {
	key   string
	cause any
}

func (e *quotaError) Error() string {
	return fmt.Sprintf("cannot store %s: %v", e.key, e.cause)
}

var (
	kv   storage.KV
	hist *memory.History
)

func jsError(err error) js.Value {
	return js.Global().Get("Error").New(err.Error())
}

func bytesFromJS(v js.Value) ([]byte, error) {
	if v.IsUndefined() || v.IsNull() || v.Get("length").Type() != js.TypeNumber {
		return nil, errors.New("expected a Uint8Array")
	}
	b := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(b, v)
	return b, nil
}

func bytesToJS(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

func idsToJS(ids []memory.TextID) js.Value {
	out := js.Global().Get("Array").New(len(ids))
	for i, id := range ids {
		out.SetIndex(i, bytesToJS(id.Bytes()))
	}
	return out
}

func idArg(args []js.Value, i int) (memory.TextID, error) {
	if len(args) <= i {
		return memory.TextID{}, fmt.Errorf("missing argument %d (text id)", i)
	}
	b, err := bytesFromJS(args[i])
	if err != nil {
		return memory.TextID{}, err
	}
	return binding.TextID(b)
}

func embeddingArg(args []js.Value, i int) (memory.Embedding, error) {
	if len(args) <= i {
		return nil, fmt.Errorf("missing argument %d (embedding)", i)
	}
	b, err := bytesFromJS(args[i])
	if err != nil {
		return nil, err
	}
	return binding.Embedding(b, hist.Dims())
}

// numArg reads an optional count. Missing, undefined and null fall back to def.
func numArg(args []js.Value, i, def int) (int, error) {
	if len(args) <= i || args[i].IsUndefined() || args[i].IsNull() {
		return def, nil
	}
	if args[i].Type() != js.TypeNumber {
		return 0, fmt.Errorf("argument %d must be a number, got %s", i, args[i].Type())
	}
	return args[i].Int(), nil
}

// export registers fn on globalThis. Functions that need the store get
// errNotLoaded until aitLoad succeeded.
func export(name string, needsHistory bool, fn func(args []js.Value) (any, error)) {
	js.Global().Set(name, js.FuncOf(func(this js.Value, args []js.Value) any {
		if needsHistory && hist == nil {
			return jsError(errNotLoaded)
		}
		res, err := fn(args)
		if err != nil {
			return jsError(err)
		}
		return res
	}))
}

func experience(args []js.Value) (memory.Experience, error) {
	id, err := idArg(args, 0)
	if err != nil {
		return memory.Experience{}, err
	}
	e, ok := hist.Get(id)
	if !ok {
		return e, errNotFound
	}
	return e, nil
}

func main() {
	ctx := context.Background()

	export("aitLoad", false, func(args []js.Value) (any, error) {
		dims := defaultDims
		if len(args) > 0 && args[0].Type() == js.TypeNumber {
			dims = args[0].Int()
		}
		if kv == nil {
			ls, err := newLocalStorageKV()
			if err != nil {
				return nil, err
			}
			kv = ls
		}
		h, err := storage.LoadHistory(ctx, kv, storage.DefaultHistoryKey, dims)
		if err != nil {
			return nil, err
		}
		hist = h
		return h.Len(), nil
	})

	export("aitStore", true, func(args []js.Value) (any, error) {
		blob, err := storage.EncodeHistory(hist)
		if err != nil {
			return nil, err
		}
		if err := kv.Set(ctx, storage.DefaultHistoryKey, blob); err != nil {
			return nil, err
		}
		return string(blob), nil
	})

	export("aitPush", true, func(args []js.Value) (any, error) {
		if len(args) < 3 {
			return nil, errors.New("missing arguments (query, response, embedding, [links])")
		}
		emb, err := embeddingArg(args, 2)
		if err != nil {
			return nil, err
		}
		var raw [][]byte
		if len(args) > 3 && !args[3].IsUndefined() && !args[3].IsNull() {
			for i := 0; i < args[3].Length(); i++ {
				b, err := bytesFromJS(args[3].Index(i))
				if err != nil {
					return nil, err
				}
				raw = append(raw, b)
			}
		}
		links, err := binding.TextIDs(raw)
		if err != nil {
			return nil, err
		}
		id, err := hist.Push(args[0].String(), args[1].String(), emb, links)
		if err != nil {
			return nil, err
		}
		return bytesToJS(id.Bytes()), nil
	})

	export("aitRelatedIds", true, func(args []js.Value) (any, error) {
		emb, err := embeddingArg(args, 0)
		if err != nil {
			return nil, err
		}
		num, err := numArg(args, 1, 3)
		if err != nil {
			return nil, err
		}
		ids, err := hist.Related(emb, num)
		if err != nil {
			return nil, err
		}
		return idsToJS(ids), nil
	})

	export("aitGetQuery", true, func(args []js.Value) (any, error) {
		e, err := experience(args)
		return e.Query, err
	})

	export("aitGetResponse", true, func(args []js.Value) (any, error) {
		e, err := experience(args)
		return e.Response, err
	})

	export("aitGetRank", true, func(args []js.Value) (any, error) {
		e, err := experience(args)
		return int(e.Rank), err
	})

	export("aitLen", true, func(args []js.Value) (any, error) {
		return hist.Len(), nil
	})

	export("aitRemove", true, func(args []js.Value) (any, error) {
		id, err := idArg(args, 0)
		if err != nil {
			return nil, err
		}
		return hist.Remove(id), nil
	})

	export("aitRecentIds", true, func(args []js.Value) (any, error) {
		num, err := numArg(args, 0, 2)
		if err != nil {
			return nil, err
		}
		recent := hist.Recent(num)
		ids := make([]memory.TextID, len(recent))
		for i, e := range recent {
			ids[i] = e.ID
		}
		return idsToJS(ids), nil
	})

	fmt.Println("ait WASM module initialized")
	select {}
}
