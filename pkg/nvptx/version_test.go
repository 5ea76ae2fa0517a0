package nvptx

import (
	"errors"
	"fmt"
	"testing"
)

func TestResolveDialect(t *testing.T) {
	tests := []struct {
		toolkit int
		want    int
	}{
		{11030, 73},
		{11040, 73},
		{12000, 73},
		{11020, 72},
		{11010, 71},
		{11000, 70},
		{10020, 65},
		{10010, 64},
		{10000, 63},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("toolkit_%d", tt.toolkit), func(t *testing.T) {
			got, err := ResolveDialect(tt.toolkit)
			if err != nil {
				t.Fatalf("ResolveDialect(%d) error: %v", tt.toolkit, err)
			}
			if got != tt.want {
				t.Errorf("ResolveDialect(%d) = %d, want %d", tt.toolkit, got, tt.want)
			}
		})
	}
}

func TestResolveDialectUnsupported(t *testing.T) {
	for _, toolkit := range []int{9999, 9000, 0, -1} {
		_, err := ResolveDialect(toolkit)
		if !errors.Is(err, ErrUnsupportedToolkit) {
			t.Errorf("ResolveDialect(%d) error = %v, want ErrUnsupportedToolkit", toolkit, err)
		}
	}
}

func TestClampForBackend(t *testing.T) {
	tests := []struct {
		cc, ptx         int
		wantCC, wantPTX int
	}{
		{80, 73, 75, 64},
		{75, 64, 75, 64},
		{70, 70, 70, 64},
		{86, 63, 75, 63},
		{60, 60, 60, 60},
	}
	for _, tt := range tests {
		gotCC, gotPTX := ClampForBackend(tt.cc, tt.ptx)
		if gotCC != tt.wantCC || gotPTX != tt.wantPTX {
			t.Errorf("ClampForBackend(%d, %d) = (%d, %d), want (%d, %d)",
				tt.cc, tt.ptx, gotCC, gotPTX, tt.wantCC, tt.wantPTX)
		}
	}
}

func TestTagHelpers(t *testing.T) {
	if got := ArchTag(80); got != "sm_80" {
		t.Errorf("ArchTag(80) = %q, want %q", got, "sm_80")
	}
	if got := FeaturePTX(64); got != "+ptx64" {
		t.Errorf("FeaturePTX(64) = %q, want %q", got, "+ptx64")
	}
	if got := DialectString(73); got != "7.3" {
		t.Errorf("DialectString(73) = %q, want %q", got, "7.3")
	}
}
