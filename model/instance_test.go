package model

import "testing"

func TestProgressPercentage(t *testing.T) {
	tests := []struct {
		name      string
		completed int
		total     int
		want      int
	}{
		{"zero total", 0, 0, 0},
		{"negative total", 2, -1, 0},
		{"none done", 0, 4, 0},
		{"quarter", 1, 4, 25},
		{"third rounds down", 1, 3, 33},
		{"two thirds rounds up", 2, 3, 67},
		{"half", 2, 4, 50},
		{"all done", 4, 4, 100},
		{"seven of eight", 7, 8, 88},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProgressPercentage(tt.completed, tt.total); got != tt.want {
				t.Errorf("ProgressPercentage(%d, %d) = %d, want %d", tt.completed, tt.total, got, tt.want)
			}
		})
	}
}

func TestInstanceStatusTerminal(t *testing.T) {
	terminal := []InstanceStatus{InstanceCompleted, InstanceFailed, InstanceCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}

	live := []InstanceStatus{InstancePending, InstanceRunning, InstancePaused}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}
