package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		value  string
		want   time.Duration
		wantOK bool
	}{
		{name: "seconds", value: "30", want: 30 * time.Second, wantOK: true},
		{name: "zero seconds", value: "0", want: 0, wantOK: true},
		{name: "padded", value: " 5 ", want: 5 * time.Second, wantOK: true},
		{name: "http date", value: now.Add(90 * time.Second).Format(http.TimeFormat), want: 90 * time.Second, wantOK: true},
		{name: "date in the past", value: now.Add(-time.Minute).Format(http.TimeFormat), want: 0, wantOK: true},
		{name: "negative", value: "-1", wantOK: false},
		{name: "empty", value: "", wantOK: false},
		{name: "garbage", value: "soon", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.value, now)
			if ok != tt.wantOK {
				t.Fatalf("ParseRetryAfter(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestRecordThrottle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("retry after wins", func(t *testing.T) {
		s := &ThrottleState{Service: "redash"}
		s.RecordThrottle(now, 10*time.Second)

		if got := s.WaitDuration(now); got != 10*time.Second {
			t.Errorf("WaitDuration() = %v, want 10s", got)
		}
		if s.ConsecutiveThrottles != 1 {
			t.Errorf("ConsecutiveThrottles = %d, want 1", s.ConsecutiveThrottles)
		}
	})

	t.Run("exponential fallback", func(t *testing.T) {
		s := &ThrottleState{Service: "redash"}
		want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
		for i, w := range want {
			at := now.Add(time.Duration(i) * time.Hour)
			s.RecordThrottle(at, 0)
			if got := s.WaitDuration(at); got != w {
				t.Errorf("throttle %d: WaitDuration() = %v, want %v", i+1, got, w)
			}
		}
	})

	t.Run("capped", func(t *testing.T) {
		s := &ThrottleState{Service: "redash"}
		s.RecordThrottle(now, time.Hour)
		if got := s.WaitDuration(now); got != MaxBackoff {
			t.Errorf("WaitDuration() = %v, want %v", got, MaxBackoff)
		}
	})

	t.Run("never shortens an existing window", func(t *testing.T) {
		s := &ThrottleState{Service: "redash"}
		s.RecordThrottle(now, time.Minute)
		s.RecordThrottle(now, time.Second)
		if got := s.WaitDuration(now); got != time.Minute {
			t.Errorf("WaitDuration() = %v, want 1m", got)
		}
	})
}

func TestRecordSuccess(t *testing.T) {
	now := time.Now()
	s := &ThrottleState{Service: "google-ads"}
	s.RecordThrottle(now, time.Minute)
	s.RecordSuccess(now)

	if s.IsBlocked(now) {
		t.Error("IsBlocked() = true after success")
	}
	if s.ConsecutiveThrottles != 0 {
		t.Errorf("ConsecutiveThrottles = %d, want 0", s.ConsecutiveThrottles)
	}
}

func TestIsThrottleStatus(t *testing.T) {
	tests := map[int]bool{
		http.StatusOK:                  false,
		http.StatusBadRequest:          false,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: false,
		http.StatusServiceUnavailable:  true,
	}
	for status, want := range tests {
		if got := IsThrottleStatus(status); got != want {
			t.Errorf("IsThrottleStatus(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestIsStale(t *testing.T) {
	s := &ThrottleState{LastUpdate: time.Now().Add(-2 * time.Minute)}
	if !s.IsStale(time.Minute) {
		t.Error("IsStale(1m) = false, want true")
	}
	if s.IsStale(time.Hour) {
		t.Error("IsStale(1h) = true, want false")
	}
}
