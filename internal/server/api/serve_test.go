package api

import "testing"

func TestParseRange(t *testing.T) {
	const size = 1000

	tests := []struct {
		name      string
		header    string
		wantStart int64
		wantEnd   int64
		wantOK    bool
	}{
		{"simple span", "bytes=0-99", 0, 99, true},
		{"middle span", "bytes=200-299", 200, 299, true},
		{"open ended", "bytes=900-", 900, 999, true},
		{"single byte", "bytes=42-42", 42, 42, true},
		{"last byte", "bytes=999-999", 999, 999, true},
		{"start at size", "bytes=1000-1001", 0, 0, false},
		{"end at size", "bytes=0-1000", 0, 0, false},
		{"inverted", "bytes=500-100", 0, 0, false},
		{"negative start", "bytes=-100-200", 0, 0, false},
		{"missing prefix", "0-99", 0, 0, false},
		{"multi range", "bytes=0-99,200-299", 0, 0, false},
		{"suffix form unsupported", "bytes=-500", 0, 0, false},
		{"garbage", "bytes=abc-def", 0, 0, false},
		{"empty", "", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := parseRange(tt.header, size)
			if ok != tt.wantOK {
				t.Fatalf("parseRange(%q) ok = %v, want %v", tt.header, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("parseRange(%q) = %d-%d, want %d-%d", tt.header, start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
