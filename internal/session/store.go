package session

import (
	"fmt"
	"sync"
	"time"

	"infrasight/internal/buffer"
	"infrasight/internal/metrics"
	"infrasight/internal/models"
)

// Listener receives every sample appended to the stream it is registered on.
// Listeners run synchronously in append order and must not append to the store.
type Listener func(models.Sample)

// Store is the aggregate state of one session: the two dashboard streams, the
// AWS single-metric history and the time of the last fault injection.
type Store struct {
	// writeMu serializes append+dispatch; stateMu guards the fields below
	writeMu sync.Mutex
	stateMu sync.RWMutex

	local      *buffer.Stream[models.Sample]
	aws        *buffer.Stream[models.Sample]
	awsHistory *buffer.Stream[models.MetricPoint]

	lastInjectionMs int64
	onLocal         []Listener
	onAWS           []Listener
}

func NewStore(streamSize, historySize int) *Store {
	if streamSize <= 0 {
		streamSize = buffer.DashboardSize
	}
	if historySize <= 0 {
		historySize = buffer.HistorySize
	}
	return &Store{
		local:      buffer.New[models.Sample](streamSize),
		aws:        buffer.New[models.Sample](streamSize),
		awsHistory: buffer.New[models.MetricPoint](historySize),
	}
}

func (s *Store) OnLocalSample(cb Listener) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.onLocal = append(s.onLocal, cb)
}

func (s *Store) OnAWSSample(cb Listener) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.onAWS = append(s.onAWS, cb)
}

// Append pushes sample onto the stream named by feed and hands it to that
// stream's listeners.
func (s *Store) Append(feed models.Source, sample models.Sample) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.stateMu.Lock()
	listeners, err := s.pushLocked(feed, sample)
	s.stateMu.Unlock()
	if err != nil {
		return err
	}
	for _, cb := range listeners {
		cb(sample)
	}
	return nil
}

// InjectPair appends a synthetic sample to each stream in one step and records
// at as the last injection time.
func (s *Store) InjectPair(local, aws models.Sample, at time.Time) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.stateMu.Lock()
	localListeners, _ := s.pushLocked(models.SourceLocal, local)
	awsListeners, _ := s.pushLocked(models.SourceAWS, aws)
	s.lastInjectionMs = at.UnixMilli()
	s.stateMu.Unlock()

	for _, cb := range localListeners {
		cb(local)
	}
	for _, cb := range awsListeners {
		cb(aws)
	}
}

func (s *Store) pushLocked(feed models.Source, sample models.Sample) ([]Listener, error) {
	switch feed {
	case models.SourceLocal:
		s.local.Push(sample)
		metrics.RecordSample(string(sample.Source), "local", s.local.Len())
		return append([]Listener(nil), s.onLocal...), nil
	case models.SourceAWS:
		s.aws.Push(sample)
		// the history follows the AWS feed only, injected samples stay out
		if sample.Source != models.SourceSimulated {
			s.awsHistory.Push(models.MetricPoint{Time: sample.Time, CPU: sample.CPU, Mem: sample.Mem, Disk: sample.Disk})
		}
		metrics.RecordSample(string(sample.Source), "aws", s.aws.Len())
		metrics.BufferLength.WithLabelValues("aws_history").Set(float64(s.awsHistory.Len()))
		return append([]Listener(nil), s.onAWS...), nil
	default:
		return nil, fmt.Errorf("unknown stream %q", feed)
	}
}

// LastInjection returns the time of the last fault injection, zero if none.
func (s *Store) LastInjection() time.Time {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.lastInjectionMs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.lastInjectionMs)
}

// LastInjectionMs is the epoch-millisecond form of LastInjection; 0 means unset.
func (s *Store) LastInjectionMs() int64 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastInjectionMs
}

func (s *Store) Local() []models.Sample { return s.local.Snapshot() }

func (s *Store) AWS() []models.Sample { return s.aws.Snapshot() }

func (s *Store) AWSHistory() []models.MetricPoint { return s.awsHistory.Snapshot() }

// Streams returns both dashboard streams from the same instant.
func (s *Store) Streams() (local, aws []models.Sample) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.local.Snapshot(), s.aws.Snapshot()
}
