package migration

import "testing"

func TestComputeChecksum(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []string
		wantSame bool
	}{
		{
			name:     "identical payloads hash identically",
			a:        []string{"CREATE TABLE t (id TEXT);"},
			b:        []string{"CREATE TABLE t (id TEXT);"},
			wantSame: true,
		},
		{
			name:     "line ending differences are normalized",
			a:        []string{"CREATE TABLE t (\r\n id TEXT\r\n);"},
			b:        []string{"CREATE TABLE t (\n id TEXT\n);"},
			wantSame: true,
		},
		{
			name:     "surrounding whitespace is trimmed",
			a:        []string{"  CREATE TABLE t (id TEXT);  \n"},
			b:        []string{"CREATE TABLE t (id TEXT);"},
			wantSame: true,
		},
		{
			name:     "different content hashes differently",
			a:        []string{"CREATE TABLE t (id TEXT);"},
			b:        []string{"CREATE TABLE u (id TEXT);"},
			wantSame: false,
		},
		{
			name:     "inverse payload participates",
			a:        []string{"CREATE TABLE t (id TEXT);", "DROP TABLE t;"},
			b:        []string{"CREATE TABLE t (id TEXT);", ""},
			wantSame: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ca, cb := ComputeChecksum(tt.a...), ComputeChecksum(tt.b...)
			if (ca == cb) != tt.wantSame {
				t.Errorf("checksums %s vs %s: same=%v, want %v", ca, cb, ca == cb, tt.wantSame)
			}
		})
	}
}

func TestComputeChecksum_Length(t *testing.T) {
	// 256-bit digest, hex encoded.
	if got := len(ComputeChecksum("x")); got != 64 {
		t.Fatalf("expected 64 hex chars, got %d", got)
	}
}
