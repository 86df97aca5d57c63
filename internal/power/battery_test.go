package power

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSupply(t *testing.T, root, name, capacity, status string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if capacity != "" {
		os.WriteFile(filepath.Join(dir, "capacity"), []byte(capacity+"\n"), 0644)
	}
	if status != "" {
		os.WriteFile(filepath.Join(dir, "status"), []byte(status+"\n"), 0644)
	}
}

func TestRead(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(t *testing.T, root string)
		wantOK       bool
		wantLevel    int
		wantCharging bool
	}{
		{
			name:  "no supplies",
			setup: func(t *testing.T, root string) {},
		},
		{
			name: "mains only",
			setup: func(t *testing.T, root string) {
				writeSupply(t, root, "AC", "", "")
			},
		},
		{
			name: "discharging",
			setup: func(t *testing.T, root string) {
				writeSupply(t, root, "BAT0", "73", "Discharging")
			},
			wantOK:    true,
			wantLevel: 73,
		},
		{
			name: "charging",
			setup: func(t *testing.T, root string) {
				writeSupply(t, root, "BAT0", "41", "Charging")
			},
			wantOK:       true,
			wantLevel:    41,
			wantCharging: true,
		},
		{
			name: "skips unreadable first battery",
			setup: func(t *testing.T, root string) {
				writeSupply(t, root, "BAT0", "garbage", "Unknown")
				writeSupply(t, root, "BAT1", "100", "Full")
			},
			wantOK:       true,
			wantLevel:    100,
			wantCharging: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			tt.setup(t, root)

			b, ok := Read(root)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if b.Level != tt.wantLevel || b.Charging != tt.wantCharging {
				t.Errorf("battery = %+v, want level %d charging %v", b, tt.wantLevel, tt.wantCharging)
			}
		})
	}
}
