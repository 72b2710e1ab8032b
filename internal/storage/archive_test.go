package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

func TestArchive_InsertAndFetchWindow(t *testing.T) {
	archive, err := NewArchive(":memory:")
	require.NoError(t, err)
	defer archive.Close()

	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := data.Reading{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			DeviceID:  "aq-01",
			Source:    "simulator",
			Values:    map[data.Quantity]float64{data.PM25: float64(10 * i), data.Humidity: 50},
		}
		require.NoError(t, archive.Insert(ctx, r))
	}

	got, err := archive.FetchWindow(ctx, base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(time.Minute), got[0].Timestamp)
	assert.Equal(t, base.Add(3*time.Minute), got[2].Timestamp)
	assert.Equal(t, 30.0, got[2].Values[data.PM25])
	assert.Equal(t, "aq-01", got[0].DeviceID)
	assert.Equal(t, "simulator", got[0].Source)

	empty, err := archive.FetchWindow(ctx, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestArchive_RejectsInvertedWindow(t *testing.T) {
	archive, err := NewArchive(":memory:")
	require.NoError(t, err)
	defer archive.Close()

	now := time.Now()
	_, err = archive.FetchWindow(context.Background(), now, now.Add(-time.Minute))
	assert.Error(t, err)
}
