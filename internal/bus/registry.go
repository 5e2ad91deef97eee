package bus

import (
	"sort"
	"sync"
	"time"

	"github.com/Bonjomondo/Health-Check-App/internal/models"
)

// DeviceState 某个数据来源最近一次已知的设备/会话状态
type DeviceState struct {
	Source       string                 `json:"source"`
	Target       string                 `json:"target"`
	State        models.ConnectionState `json:"state"`
	LastReading  *models.Reading        `json:"last_reading,omitempty"`
	Battery      int                    `json:"battery"`
	BatteryKnown bool                   `json:"battery_known"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// Registry 设备状态注册表（按数据来源保存）
type Registry struct {
	mu     sync.RWMutex
	states map[string]*DeviceState
	now    func() time.Time
}

func newRegistry(now func() time.Time) *Registry {
	return &Registry{
		states: make(map[string]*DeviceState),
		now:    now,
	}
}

// Snapshot 返回指定来源的状态副本
func (r *Registry) Snapshot(source string) (DeviceState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.states[source]
	if !ok {
		return DeviceState{Source: source, State: models.Disconnected()}, false
	}
	out := *st
	if st.LastReading != nil {
		reading := *st.LastReading
		out.LastReading = &reading
	}
	return out, true
}

// Sources 已知的数据来源（排序）
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.states))
	for source := range r.states {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

func (r *Registry) entry(source string) *DeviceState {
	st, ok := r.states[source]
	if !ok {
		st = &DeviceState{Source: source, State: models.Disconnected()}
		r.states[source] = st
	}
	st.UpdatedAt = r.now()
	return st
}

func (r *Registry) setState(source, target string, state models.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.entry(source)
	st.State = state
	if target != "" {
		st.Target = target
	}
}

func (r *Registry) setReading(source string, reading models.Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.entry(source)
	st.LastReading = &reading
	if reading.BatteryLevel > 0 {
		st.Battery = reading.BatteryLevel
		st.BatteryKnown = true
	}
}

func (r *Registry) setBattery(source string, level int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.entry(source)
	st.Battery = level
	st.BatteryKnown = true
}
