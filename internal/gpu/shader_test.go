package gpu

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

func TestBaseShaderCompiles(t *testing.T) {
	if err := validateWGSL(baseShaderWGSL); err != nil {
		t.Fatalf("base shader: %v", err)
	}
}

func TestValidateWGSLRejectsGarbage(t *testing.T) {
	if err := validateWGSL("fn main( {"); err == nil {
		t.Fatal("expected error for malformed WGSL")
	}
}

func TestAdapterType(t *testing.T) {
	tests := []struct {
		in   gputypes.DeviceType
		want gpucontext.AdapterType
	}{
		{gputypes.DeviceTypeDiscreteGPU, gpucontext.AdapterTypeDiscrete},
		{gputypes.DeviceTypeIntegratedGPU, gpucontext.AdapterTypeIntegrated},
		{gputypes.DeviceTypeCPU, gpucontext.AdapterTypeSoftware},
		{gputypes.DeviceTypeVirtualGPU, gpucontext.AdapterTypeUnknown},
		{gputypes.DeviceTypeOther, gpucontext.AdapterTypeUnknown},
	}
	for _, tt := range tests {
		if got := adapterType(tt.in); got != tt.want {
			t.Errorf("adapterType(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWindowHandleHeadless(t *testing.T) {
	if !(WindowHandle{}).Headless() {
		t.Error("zero handle should be headless")
	}
	if (WindowHandle{Window: 1}).Headless() {
		t.Error("handle with window should not be headless")
	}
}
