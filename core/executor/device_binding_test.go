package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBindDevice(t *testing.T) {
	tests := []struct {
		name         string
		devices      []string
		accelerators int
		want         DeviceScope
	}{
		{"no devices", nil, 2, DeviceScope{Device: "cpu"}},
		{"cpu requested", []string{"cpu", "cuda:1"}, 2, DeviceScope{Device: "cpu"}},
		{"cuda without ordinal", []string{"cuda"}, 1, DeviceScope{Device: "cuda:0", Visible: "0"}},
		{"cuda with ordinal", []string{"cuda:3", "cpu"}, 4, DeviceScope{Device: "cuda:0", Visible: "3"}},
		{"cuda trailing colon", []string{"cuda:"}, 1, DeviceScope{Device: "cuda:0", Visible: "0"}},
		{"no accelerator available", []string{"cuda:0"}, 0, DeviceScope{Device: "cpu"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BindDevice(tt.devices, tt.accelerators)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Device != "cpu", got.Accelerated())
		})
	}
}
