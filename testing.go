package kcov

import (
	"sync"

	"github.com/kbarlow/kcov/internal/descriptor"
)

// MockTask wraps a *descriptor.Task with call-count tracking, for
// tests that drive the trace sinks directly and want to assert how
// many times instrumentation fired without threading counters through
// their own code — the same call-count-tracking shape as the
// teacher's testing.go MockBackend.
type MockTask struct {
	*descriptor.Task

	mu       sync.Mutex
	pcCalls  int
	cmpCalls int
}

// NewMockTask returns a MockTask ready to Enable against a Session.
func NewMockTask() *MockTask {
	return &MockTask{Task: &descriptor.Task{}}
}

// TracePC drives descriptor.TracePC against the wrapped task and
// counts the call.
func (m *MockTask) TracePC(inTaskContext bool, rawPC, aslrBase uint64) {
	m.mu.Lock()
	m.pcCalls++
	m.mu.Unlock()
	descriptor.TracePC(m.Task, inTaskContext, rawPC, aslrBase)
}

// TraceCmp4 drives descriptor.TraceCmp4 against the wrapped task and
// counts the call.
func (m *MockTask) TraceCmp4(inTaskContext bool, arg1, arg2 uint32, rawPC, aslrBase uint64) {
	m.mu.Lock()
	m.cmpCalls++
	m.mu.Unlock()
	descriptor.TraceCmp4(m.Task, inTaskContext, arg1, arg2, rawPC, aslrBase)
}

// CallCounts returns how many times each sink has fired through this
// mock, regardless of whether the call was recorded or dropped.
func (m *MockTask) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{"trace_pc": m.pcCalls, "trace_cmp4": m.cmpCalls}
}

// MockExecutor simulates a background executor claiming a handle
// across (possibly many) nested Start/Stop calls, tracking how many
// windows it has opened and closed, for registry tests that would
// otherwise hand-roll the same bookkeeping per test.
type MockExecutor struct {
	facility *Facility
	handle   uint64
	task     descriptor.Task

	mu     sync.Mutex
	starts int
	stops  int
}

// NewMockExecutor returns a MockExecutor that will claim handle
// against f when Start is called.
func NewMockExecutor(f *Facility, handle uint64) *MockExecutor {
	return &MockExecutor{facility: f, handle: handle}
}

// Start opens a remote-collection window for this executor's handle.
func (m *MockExecutor) Start() {
	m.mu.Lock()
	m.starts++
	m.mu.Unlock()
	m.facility.RemoteStart(&m.task, m.handle)
}

// Stop closes the window, merging or dropping its records per
// spec.md §4.3.
func (m *MockExecutor) Stop() {
	m.mu.Lock()
	m.stops++
	m.mu.Unlock()
	m.facility.RemoteStop(&m.task)
}

// Task exposes the executor's underlying task for sink calls.
func (m *MockExecutor) Task() *descriptor.Task {
	return &m.task
}

// Counts returns the number of Start/Stop calls observed so far.
func (m *MockExecutor) Counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}
