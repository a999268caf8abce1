package audio

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockOutput implements Output without producing sound. Playback of a buffer
// is simulated by a timer of the buffer's duration scaled by the delay
// factor. Tests use the behaviour hooks to make starts fail or to make a
// source never report completion.
type MockOutput struct {
	mu sync.Mutex

	// Test configuration
	delayFactor float64
	startErr    func(*Buffer) error
	stuck       func(*Buffer) bool
	callbacks   MockCallbacks

	suspended bool
	started   []MockStart

	// Metrics for testing
	startCount   atomic.Int64
	stopCount    atomic.Int64
	resumeCount  atomic.Int64
	suspendCount atomic.Int64
}

// MockStart records one Start call.
type MockStart struct {
	Seq  int
	At   time.Time
	Buf  *Buffer
	Fail bool
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnStart  func(*Buffer)
	OnFinish func(*Buffer)
	OnStop   func(*Buffer)
}

// ErrMockStart is the default error for failed mock starts.
var ErrMockStart = errors.New("mock output refused to start")

// NewMockOutput creates a mock output playing in real time.
func NewMockOutput() *MockOutput {
	return &MockOutput{delayFactor: 1.0}
}

// SetDelayFactor scales simulated playback time; 0.5 plays twice as fast.
func (m *MockOutput) SetDelayFactor(f float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f <= 0 {
		f = 1.0
	}
	m.delayFactor = f
}

// SetStartError makes Start fail whenever fn returns an error.
func (m *MockOutput) SetStartError(fn func(*Buffer) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = fn
}

// SetStuck makes sources for which fn returns true never signal completion.
func (m *MockOutput) SetStuck(fn func(*Buffer) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stuck = fn
}

// SetCallbacks installs test callbacks.
func (m *MockOutput) SetCallbacks(cb MockCallbacks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = cb
}

// Start implements Output.
func (m *MockOutput) Start(buf *Buffer) (Source, error) {
	m.mu.Lock()
	startErr, stuck, cb, factor := m.startErr, m.stuck, m.callbacks, m.delayFactor

	var err error
	if startErr != nil {
		err = startErr(buf)
	}
	m.started = append(m.started, MockStart{Seq: buf.Seq, At: time.Now(), Buf: buf, Fail: err != nil})
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	m.startCount.Add(1)
	if cb.OnStart != nil {
		cb.OnStart(buf)
	}

	src := &mockSource{
		output: m,
		buf:    buf,
		done:   make(chan struct{}),
		onStop: cb.OnStop,
	}
	if stuck == nil || !stuck(buf) {
		d := time.Duration(float64(buf.Duration) * factor)
		src.timer = time.AfterFunc(d, func() {
			src.finish()
			if cb.OnFinish != nil {
				cb.OnFinish(buf)
			}
		})
	}
	return src, nil
}

// Suspended implements Output.
func (m *MockOutput) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

// Suspend implements Output.
func (m *MockOutput) Suspend() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
	m.suspendCount.Add(1)
	return nil
}

// Resume implements Output.
func (m *MockOutput) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = false
	m.resumeCount.Add(1)
	return nil
}

// Close implements Output.
func (m *MockOutput) Close() error {
	return nil
}

// Starts returns every recorded Start call, failed ones included.
func (m *MockOutput) Starts() []MockStart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockStart(nil), m.started...)
}

// StartedSeqs returns the sequence numbers of successfully started buffers.
func (m *MockOutput) StartedSeqs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var seqs []int
	for _, s := range m.started {
		if !s.Fail {
			seqs = append(seqs, s.Seq)
		}
	}
	return seqs
}

// GetStartCount returns the number of successful starts.
func (m *MockOutput) GetStartCount() int64 { return m.startCount.Load() }

// GetStopCount returns the number of sources stopped before completion.
func (m *MockOutput) GetStopCount() int64 { return m.stopCount.Load() }

// GetResumeCount returns the number of Resume calls.
func (m *MockOutput) GetResumeCount() int64 { return m.resumeCount.Load() }

// GetSuspendCount returns the number of Suspend calls.
func (m *MockOutput) GetSuspendCount() int64 { return m.suspendCount.Load() }

type mockSource struct {
	output *MockOutput
	buf    *Buffer
	timer  *time.Timer
	done   chan struct{}
	onStop func(*Buffer)

	once sync.Once
}

func (s *mockSource) Done() <-chan struct{} {
	return s.done
}

func (s *mockSource) finish() {
	s.once.Do(func() {
		close(s.done)
	})
}

func (s *mockSource) Stop() {
	stopped := false
	s.once.Do(func() {
		stopped = true
		if s.timer != nil {
			s.timer.Stop()
		}
	})
	if !stopped {
		return
	}
	s.output.stopCount.Add(1)
	if s.onStop != nil {
		s.onStop(s.buf)
	}
}
