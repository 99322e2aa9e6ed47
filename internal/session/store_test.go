package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"infrasight/internal/models"
)

func sample(src models.Source, tm string, risk float64) models.Sample {
	return models.Sample{Time: tm, CPU: 10, Mem: 20, Disk: 30, Risk: risk, Source: src}
}

func TestStoreAppendRoutesByFeed(t *testing.T) {
	st := NewStore(30, 11)
	require.NoError(t, st.Append(models.SourceLocal, sample(models.SourceLocal, "a", 1)))
	require.NoError(t, st.Append(models.SourceAWS, sample(models.SourceAWS, "x", 5)))
	require.NoError(t, st.Append(models.SourceAWS, sample(models.SourceAWS, "y", 6)))

	local, aws := st.Streams()
	assert.Len(t, local, 1)
	assert.Len(t, aws, 2)
	assert.Equal(t, []models.MetricPoint{
		{Time: "x", CPU: 10, Mem: 20, Disk: 30},
		{Time: "y", CPU: 10, Mem: 20, Disk: 30},
	}, st.AWSHistory())
}

func TestStoreRejectsUnknownFeed(t *testing.T) {
	st := NewStore(30, 11)
	assert.Error(t, st.Append(models.SourceSimulated, sample(models.SourceSimulated, "a", 1)))
	assert.Empty(t, st.Local())
	assert.Empty(t, st.AWS())
}

func TestStoreListenersRunInRegistrationOrder(t *testing.T) {
	st := NewStore(30, 11)
	var calls []string
	st.OnLocalSample(func(s models.Sample) { calls = append(calls, "first:"+s.Time) })
	st.OnLocalSample(func(s models.Sample) { calls = append(calls, "second:"+s.Time) })
	st.OnAWSSample(func(s models.Sample) { calls = append(calls, "aws:"+s.Time) })

	require.NoError(t, st.Append(models.SourceLocal, sample(models.SourceLocal, "t1", 1)))
	assert.Equal(t, []string{"first:t1", "second:t1"}, calls)
}

func TestStoreListenerMayReadState(t *testing.T) {
	st := NewStore(30, 11)
	var seen int
	st.OnAWSSample(func(models.Sample) { seen = len(st.AWS()) })
	require.NoError(t, st.Append(models.SourceAWS, sample(models.SourceAWS, "x", 1)))
	assert.Equal(t, 1, seen)
}

func TestStoreHistoryCapacity(t *testing.T) {
	st := NewStore(30, 11)
	for i := range 15 {
		require.NoError(t, st.Append(models.SourceAWS, sample(models.SourceAWS, string(rune('a'+i)), float64(i))))
	}
	assert.Len(t, st.AWS(), 15)
	hist := st.AWSHistory()
	require.Len(t, hist, 11)
	assert.Equal(t, "e", hist[0].Time)
	assert.Equal(t, "o", hist[10].Time)
}

func TestStoreInjectPair(t *testing.T) {
	st := NewStore(2, 11)
	assert.True(t, st.LastInjection().IsZero())
	assert.Zero(t, st.LastInjectionMs())

	var order []models.Source
	st.OnLocalSample(func(s models.Sample) { order = append(order, models.SourceLocal) })
	st.OnAWSSample(func(s models.Sample) { order = append(order, models.SourceAWS) })

	for _, tm := range []string{"1", "2"} {
		require.NoError(t, st.Append(models.SourceLocal, sample(models.SourceLocal, tm, 1)))
	}
	order = nil

	at := time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)
	st.InjectPair(sample(models.SourceSimulated, "inj", 110), sample(models.SourceSimulated, "inj", 112), at)

	local, aws := st.Streams()
	require.Len(t, local, 2)
	assert.Equal(t, "2", local[0].Time)
	assert.Equal(t, "inj", local[1].Time)
	require.Len(t, aws, 1)
	assert.Equal(t, 112.0, aws[0].Risk)
	assert.Equal(t, at.UnixMilli(), st.LastInjectionMs())
	assert.True(t, at.Equal(st.LastInjection()))
	assert.Equal(t, []models.Source{models.SourceLocal, models.SourceAWS}, order)
}

func TestStoreHistorySkipsInjectedSamples(t *testing.T) {
	st := NewStore(30, 11)
	require.NoError(t, st.Append(models.SourceAWS, sample(models.SourceAWS, "x", 5)))
	st.InjectPair(sample(models.SourceSimulated, "inj", 110), sample(models.SourceSimulated, "inj", 112), time.Now())
	require.NoError(t, st.Append(models.SourceAWS, sample(models.SourceAWS, "y", 6)))

	assert.Len(t, st.AWS(), 3)
	hist := st.AWSHistory()
	require.Len(t, hist, 2)
	assert.Equal(t, "x", hist[0].Time)
	assert.Equal(t, "y", hist[1].Time)
}

func TestStoreInjectPairIsNotInterleaved(t *testing.T) {
	st := NewStore(1000, 11)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				_ = st.Append(models.SourceLocal, sample(models.SourceLocal, "l", 1))
				_ = st.Append(models.SourceAWS, sample(models.SourceAWS, "a", 1))
			}
		}()
	}
	for range 20 {
		st.InjectPair(sample(models.SourceSimulated, "inj", 110), sample(models.SourceSimulated, "inj", 112), time.Now())
	}
	wg.Wait()

	local, aws := st.Streams()
	assert.Len(t, local, 420)
	assert.Len(t, aws, 420)
}
