package tracing

import (
	"strings"
	"testing"
)

func TestNewSampler(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{"always", SamplerAlways, 0, false},
		{"never", SamplerNever, 0, false},
		{"ratio half", SamplerRatio, 0.5, false},
		{"ratio zero", SamplerRatio, 0.0, false},
		{"ratio full", SamplerRatio, 1.0, false},
		{"ratio below range", SamplerRatio, -0.1, true},
		{"ratio above range", SamplerRatio, 1.1, true},
		{"empty strategy", "", 0, true},
		{"unknown strategy", "sometimes", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler, err := newSampler(tt.strategy, tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newSampler() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if sampler == nil {
				t.Fatal("newSampler() returned nil sampler")
			}
			if !strings.Contains(sampler.Description(), "ParentBased") {
				t.Errorf("Description() = %q, want a parent-based sampler", sampler.Description())
			}
		})
	}
}
