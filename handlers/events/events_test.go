package events

import (
	"testing"
)

func TestDocumentPayload(t *testing.T) {
	testCases := []struct {
		name    string
		datas   []any
		want    string
		wantErr bool
	}{
		{"text", []any{`{"pages":[]}`}, `{"pages":[]}`, false},
		{"bytes", []any{[]byte(`{"a":1}`)}, `{"a":1}`, false},
		{"object", []any{map[string]any{"width": 10.0}}, `{"width":10}`, false},
		{"empty", nil, "", true},
		{"number", []any{42.0}, "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := documentPayload(tc.datas)
			if (err != nil) != tc.wantErr {
				t.Fatalf("documentPayload() error = %v, wantErr %v", err, tc.wantErr)
			}
			if string(got) != tc.want {
				t.Errorf("documentPayload() = %s, want %s", got, tc.want)
			}
		})
	}
}
