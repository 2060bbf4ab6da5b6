package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysBetween(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		a, b time.Time
		loc  *time.Location
		want int
	}{
		{"same day", time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), time.UTC, 0},
		{"next day", time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC), time.UTC, 1},
		{"gap", time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC), time.UTC, 3},
		{"backwards", time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC), time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC), time.UTC, -1},
		// 02:00 UTC on the 3rd is still the 2nd in New York.
		{"local day", time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 2, 0, 0, 0, time.UTC), ny, 0},
		// DST starts 2026-03-08 in New York; the short day still counts as one.
		{"across dst", time.Date(2026, 3, 8, 6, 30, 0, 0, time.UTC), time.Date(2026, 3, 9, 5, 0, 0, 0, time.UTC), ny, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysBetween(tt.a, tt.b, tt.loc))
		})
	}
}

func TestLoadLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Nowhere/Special"))
	assert.Equal(t, "Asia/Tokyo", LoadLocation("Asia/Tokyo").String())
}

func TestStoreTimeout(t *testing.T) {
	SetStoreTimeout(time.Millisecond)
	t.Cleanup(func() { SetStoreTimeout(DefaultTimeout) })

	ctx, cancel := WithStoreTimeout(context.Background())
	defer cancel()
	<-ctx.Done()
	assert.True(t, IsContextError(ctx.Err()))
	assert.False(t, IsContextError(errors.New("other")))
}

func TestSetStoreTimeoutConcurrentWithCalls(t *testing.T) {
	t.Cleanup(func() { SetStoreTimeout(DefaultTimeout) })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			SetStoreTimeout(time.Duration(i+1) * time.Second)
		}(i)
		go func() {
			defer wg.Done()
			_, cancel := WithStoreTimeout(context.Background())
			cancel()
		}()
	}
	wg.Wait()

	SetStoreTimeout(0)
	assert.Greater(t, StoreTimeout(), time.Duration(0))
	SetStoreTimeout(3 * time.Second)
	assert.Equal(t, 3*time.Second, StoreTimeout())
}
