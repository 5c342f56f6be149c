package subscription_test

import (
	"testing"
	"time"

	"github.com/xraph/tollgate/subscription"
)

func TestLapsed(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status subscription.Status
		end    time.Time
		want   bool
	}{
		{"active future end", subscription.StatusActive, now.Add(time.Hour), false},
		{"active end equals now", subscription.StatusActive, now, false},
		{"active past end", subscription.StatusActive, now.Add(-time.Millisecond), true},
		{"expired past end", subscription.StatusExpired, now.Add(-time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &subscription.Subscription{Status: tt.status, EndDate: tt.end}
			if got := s.Lapsed(now); got != tt.want {
				t.Errorf("Lapsed() = %v, want %v", got, tt.want)
			}
		})
	}
}
