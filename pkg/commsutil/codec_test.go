package commsutil

import (
	"encoding/json"
	"testing"
)

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		name    string
		input   interface{}
		want    string
		wantErr bool
	}{
		{"map", map[string]string{"resource": "widgets"}, `{"resource":"widgets"}`, false},
		{"nil", nil, "null", false},
		{"slice", []int{1, 2, 3}, "[1,2,3]", false},
		{"channel is not serializable", make(chan int), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("commsutil:codec_test - expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("commsutil:codec_test - EncodePayload() = %q, want %q", string(data), tt.want)
			}
		})
	}
}

func TestDecodePayload_KeepsNumbers(t *testing.T) {
	var v map[string]interface{}
	if err := DecodePayload([]byte(`{"id":9007199254740993,"limit":10}`), &v); err != nil {
		t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
	}
	id, ok := v["id"].(json.Number)
	if !ok {
		t.Fatalf("commsutil:codec_test - id type = %T, want json.Number", v["id"])
	}
	if id.String() != "9007199254740993" {
		t.Errorf("commsutil:codec_test - id = %s, want exact value", id)
	}
	if n, err := v["limit"].(json.Number).Int64(); err != nil || n != 10 {
		t.Errorf("commsutil:codec_test - limit = %v (%v), want 10", n, err)
	}
}

func TestDecodePayload_Errors(t *testing.T) {
	for _, data := range []string{`{invalid}`, ``} {
		var v map[string]string
		if err := DecodePayload([]byte(data), &v); err == nil {
			t.Errorf("commsutil:codec_test - expected error for %q", data)
		}
	}
}
