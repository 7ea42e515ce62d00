package cli

import "testing"

func TestResolveBlameFormat(t *testing.T) {
	tests := []struct {
		name                                                  string
		porcelain, linePorcelain, incremental, jsonOutput     bool
		want                                                  BlameFormat
	}{
		{"default", false, false, false, false, BlameDefault},
		{"porcelain", true, false, false, false, BlamePorcelain},
		{"line-porcelain wins over porcelain", true, true, false, false, BlameLinePorcelain},
		{"incremental", false, false, true, false, BlameIncremental},
		{"json wins over everything", true, true, true, true, BlameJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveBlameFormat(tt.porcelain, tt.linePorcelain, tt.incremental, tt.jsonOutput)
			if got != tt.want {
				t.Errorf("resolveBlameFormat(%v, %v, %v, %v) = %v, want %v",
					tt.porcelain, tt.linePorcelain, tt.incremental, tt.jsonOutput, got, tt.want)
			}
		})
	}
}
