//go:build js && wasm

package main

import (
	"syscall/js"
	"testing"
)

func TestNumArg(t *testing.T) {
	cases := []struct {
		name    string
		args    []js.Value
		want    int
		wantErr bool
	}{
		{"missing", nil, 3, false},
		{"undefined", []js.Value{js.Undefined()}, 3, false},
		{"null", []js.Value{js.Null()}, 3, false},
		{"number", []js.Value{js.ValueOf(7)}, 7, false},
		{"string", []js.Value{js.ValueOf("7")}, 0, true},
		{"object", []js.Value{js.ValueOf(map[string]any{})}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := numArg(tc.args, 0, 3)
			if (err != nil) != tc.wantErr {
				t.Fatalf("expected error %v, got %v", tc.wantErr, err)
			}
			if !tc.wantErr && got != tc.want {
				t.Errorf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestBytesFromJSRejectsNonArrays(t *testing.T) {
	for _, v := range []js.Value{js.Undefined(), js.ValueOf("abc"), js.ValueOf(map[string]any{"length": "x"})} {
		if _, err := bytesFromJS(v); err == nil {
			t.Errorf("expected error for %s", v.Type())
		}
	}
}
