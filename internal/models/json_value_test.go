package models

import "testing"

func TestJSONValueScanScalars(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{int64(1800), "1800"},
		{float64(1.5), "1.5"},
		{true, "true"},
		{"\"Console\"", "\"Console\""},
		{[]byte(`{"a":1}`), `{"a":1}`},
	}
	for _, tc := range cases {
		var v JSONValue
		if err := v.Scan(tc.in); err != nil {
			t.Fatalf("Scan(%v): %v", tc.in, err)
		}
		if string(v) != tc.want {
			t.Fatalf("Scan(%v) = %s, want %s", tc.in, v, tc.want)
		}
	}

	var v JSONValue
	if err := v.Scan(struct{}{}); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}

func TestJSONValueValue(t *testing.T) {
	raw, err := JSONValue("1800").Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if s, ok := raw.(string); !ok || s != "1800" {
		t.Fatalf("expected string driver value, got %#v", raw)
	}
	if empty, _ := JSONValue(nil).Value(); empty != nil {
		t.Fatalf("expected nil driver value for empty document, got %#v", empty)
	}
}
