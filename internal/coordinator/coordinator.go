package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/greenhouse/internal/model"
	"github.com/thatsimonsguy/greenhouse/internal/port"
	"github.com/thatsimonsguy/greenhouse/internal/rules"
	"github.com/thatsimonsguy/greenhouse/internal/state"
)

const (
	DefaultInterval = 30 * time.Second
	maxNotices      = 20
	eventBuffer     = 64
)

var (
	ErrNotStarted = errors.New("coordinator not started")
	ErrStarted    = errors.New("coordinator already started")
)

// Recorder receives every published snapshot, e.g. for metrics.
type Recorder interface {
	RecordSnapshot(snap state.Snapshot)
}

type Option func(*Coordinator)

func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithPolicy(p rules.Policy) Option {
	return func(c *Coordinator) { c.policy = p }
}

func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithTicks replaces the poll ticker with the given channel.
func WithTicks(ticks <-chan time.Time) Option {
	return func(c *Coordinator) { c.ticks = ticks }
}

type cmdKey struct {
	device string
	field  string
}

const (
	fieldStatus = "status"
	fieldFan    = "fan_speed"
)

type pendingCmd struct {
	token  uint64
	status model.DeviceStatus
	fan    int
}

type subscriber struct {
	id int
	fn func(state.Snapshot)
}

// Coordinator owns the derived state. All mutation happens on a single
// event loop goroutine; port calls run on their own goroutines and post
// their results back to the loop.
type Coordinator struct {
	port     port.DataPort
	policy   rules.Policy
	interval time.Duration
	recorder Recorder
	now      func() time.Time
	ticks    <-chan time.Time

	events  chan func()
	done    chan struct{}
	started atomic.Bool
	stop    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc

	current atomic.Pointer[state.Snapshot]

	subMu   sync.Mutex
	subs    []subscriber
	nextSub int

	// Owned by the event loop.
	raw         state.Raw
	phases      map[state.Slot]state.Phase
	stale       map[state.Slot]bool
	notices     []state.Notice
	version     uint64
	nextToken   uint64
	tokens      map[state.Slot]uint64
	inflight    map[state.Slot]context.CancelFunc
	focusSensor string
	focusPeriod port.Period
	confirmed   map[string]model.Device
	confirmTok  map[cmdKey]uint64
	cmds        map[cmdKey]pendingCmd
}

func New(p port.DataPort, opts ...Option) *Coordinator {
	c := &Coordinator{
		port:        p,
		policy:      rules.DefaultPolicy,
		interval:    DefaultInterval,
		now:         time.Now,
		events:      make(chan func(), eventBuffer),
		done:        make(chan struct{}),
		phases:      make(map[state.Slot]state.Phase),
		stale:       make(map[state.Slot]bool),
		tokens:      make(map[state.Slot]uint64),
		inflight:    make(map[state.Slot]context.CancelFunc),
		focusPeriod: port.PeriodDay,
		confirmed:   make(map[string]model.Device),
		confirmTok:  make(map[cmdKey]uint64),
		cmds:        make(map[cmdKey]pendingCmd),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, s := range state.Slots {
		c.phases[s] = state.PhaseIdle
	}
	c.publish()
	return c
}

// Snapshot returns the most recently published state.
func (c *Coordinator) Snapshot() state.Snapshot {
	return *c.current.Load()
}

// Subscribe registers fn to receive every published snapshot in order.
// fn runs on the event loop and must not block or call back into the
// coordinator synchronously.
func (c *Coordinator) Subscribe(fn func(state.Snapshot)) (unsubscribe func()) {
	c.subMu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

// Start mounts the dashboard: every collection is fetched concurrently,
// the first sensor is charted if none was chosen, and polling begins.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	ticks := c.ticks
	var ticker *time.Ticker
	if ticks == nil {
		ticker = time.NewTicker(c.interval)
		ticks = ticker.C
	}

	go c.run(ticks, ticker)
	c.post(c.mount)

	log.Info().Dur("interval", c.interval).Msg("Coordinator started")
	return nil
}

// Stop cancels polling and every in-flight request. Nothing mutates the
// state once Stop returns.
func (c *Coordinator) Stop() {
	if !c.started.Load() {
		return
	}
	c.stop.Do(func() {
		c.cancel()
		<-c.done
		log.Info().Msg("Coordinator stopped")
	})
}

func (c *Coordinator) run(ticks <-chan time.Time, ticker *time.Ticker) {
	defer close(c.done)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		for slot, cancel := range c.inflight {
			cancel()
			delete(c.inflight, slot)
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticks:
			if c.ctx.Err() == nil {
				c.tick()
			}
		case fn := <-c.events:
			if c.ctx.Err() == nil {
				fn()
			}
		}
	}
}

func (c *Coordinator) post(fn func()) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- fn:
		return true
	case <-c.done:
		return false
	}
}

func (c *Coordinator) send(fn func()) error {
	if !c.started.Load() {
		return ErrNotStarted
	}
	if !c.post(fn) {
		return ErrNotStarted
	}
	return nil
}

func (c *Coordinator) mount() {
	c.refreshSensors()
	c.refreshDevices()
	c.refreshCrops()
	c.refreshForecast()
	if c.focusSensor != "" {
		c.refreshHistory()
	}
	c.publish()
}

func (c *Coordinator) tick() {
	switch c.phases[state.SlotSensors] {
	case state.PhaseFetching:
		log.Debug().Msg("Skipping poll, sensor request still in flight")
		return
	case state.PhaseSettled:
		c.refreshSensors()
		c.publish()
	}
}

// Refresh re-fetches every collection and the chart.
func (c *Coordinator) Refresh() error {
	return c.send(c.mount)
}

// Focus charts sensorID over period. The newest focus always wins.
func (c *Coordinator) Focus(sensorID string, period port.Period) error {
	return c.send(func() {
		c.focusSensor = sensorID
		c.focusPeriod = period
		c.refreshHistory()
		c.publish()
	})
}

func (c *Coordinator) SelectSensor(sensorID string) error {
	return c.send(func() {
		c.focusSensor = sensorID
		c.refreshHistory()
		c.publish()
	})
}

func (c *Coordinator) SetPeriod(period port.Period) error {
	return c.send(func() {
		c.focusPeriod = period
		if c.focusSensor != "" {
			c.refreshHistory()
		}
		c.publish()
	})
}

// DismissNotice removes a notice by id.
func (c *Coordinator) DismissNotice(id string) error {
	return c.send(func() {
		for i, n := range c.notices {
			if n.ID == id {
				c.notices = append(c.notices[:i:i], c.notices[i+1:]...)
				c.publish()
				return
			}
		}
	})
}

// request issues a port call for slot. Any earlier request for the slot is
// cancelled, and only the result of the latest one is applied.
func (c *Coordinator) request(slot state.Slot, call func(ctx context.Context) (func(), error)) {
	if cancel, ok := c.inflight[slot]; ok {
		cancel()
	}
	c.nextToken++
	token := c.nextToken
	c.tokens[slot] = token

	ctx, cancel := context.WithCancel(c.ctx)
	c.inflight[slot] = cancel
	c.phases[slot] = state.PhaseFetching

	go func() {
		apply, err := call(ctx)
		c.post(func() { c.complete(slot, token, apply, err) })
	}()
}

func (c *Coordinator) complete(slot state.Slot, token uint64, apply func(), err error) {
	if c.tokens[slot] != token {
		log.Debug().Str("slot", string(slot)).Uint64("token", token).Msg("Discarding superseded result")
		return
	}
	if cancel, ok := c.inflight[slot]; ok {
		cancel()
		delete(c.inflight, slot)
	}
	c.phases[slot] = state.PhaseSettled

	if err != nil {
		c.stale[slot] = true
		log.Warn().Err(err).Str("slot", string(slot)).Msg("Refresh failed, keeping previous data")
		c.notify(noticeKind(err, state.NoticeFetchFailed), string(slot), fmt.Sprintf("Failed to refresh %s: %v", slot, err))
	} else {
		c.stale[slot] = false
		apply()
	}
	c.publish()
}

func (c *Coordinator) refreshSensors() {
	c.request(state.SlotSensors, func(ctx context.Context) (func(), error) {
		readings, err := c.port.FetchSensors(ctx)
		if err != nil {
			return nil, err
		}
		return func() {
			c.raw.Sensors = readings
			if c.focusSensor == "" && len(readings) > 0 {
				c.focusSensor = readings[0].ID
				c.refreshHistory()
			}
		}, nil
	})
}

func (c *Coordinator) refreshDevices() {
	c.request(state.SlotDevices, func(ctx context.Context) (func(), error) {
		devices, err := c.port.FetchDevices(ctx)
		if err != nil {
			return nil, err
		}
		return func() {
			// A command confirmed after this fetch was issued is newer
			// than what the fetch returned.
			issued := c.tokens[state.SlotDevices]
			prev := c.confirmed
			c.confirmed = make(map[string]model.Device, len(devices))
			for i := range devices {
				d := &devices[i]
				if old, ok := prev[d.ID]; ok {
					if c.confirmTok[cmdKey{d.ID, fieldStatus}] > issued {
						d.Status = old.Status
					}
					if c.confirmTok[cmdKey{d.ID, fieldFan}] > issued {
						d.FanSpeed = old.Clone().FanSpeed
					}
				}
				c.confirmed[d.ID] = d.Clone()
			}
			c.raw.Devices = devices
			for i := range c.raw.Devices {
				c.overlay(&c.raw.Devices[i])
			}
		}, nil
	})
}

func (c *Coordinator) refreshCrops() {
	c.request(state.SlotCrops, func(ctx context.Context) (func(), error) {
		crops, err := c.port.FetchCrops(ctx)
		if err != nil {
			return nil, err
		}
		return func() { c.raw.Crops = crops }, nil
	})
}

func (c *Coordinator) refreshForecast() {
	c.request(state.SlotForecast, func(ctx context.Context) (func(), error) {
		days, err := c.port.FetchForecast(ctx)
		if err != nil {
			return nil, err
		}
		model.SortForecast(days)
		if len(days) > port.ForecastHorizon {
			days = days[:port.ForecastHorizon]
		}
		return func() { c.raw.Forecast = days }, nil
	})
}

func (c *Coordinator) refreshHistory() {
	sensorID, period := c.focusSensor, c.focusPeriod
	c.request(state.SlotHistory, func(ctx context.Context) (func(), error) {
		series, err := c.port.FetchHistory(ctx, sensorID, period)
		if err != nil {
			return nil, err
		}
		return func() { c.raw.Series = series }, nil
	})
}

// CropDetail fetches one crop directly from the port and derives its
// progress. It does not touch the published state.
func (c *Coordinator) CropDetail(ctx context.Context, cropID string) (state.Crop, error) {
	crop, err := c.port.FetchCropByID(ctx, cropID)
	if err != nil {
		return state.Crop{}, err
	}
	return state.DeriveCrops([]model.Crop{crop}, c.now())[0], nil
}

func noticeKind(err error, fallback state.NoticeKind) state.NoticeKind {
	if errors.Is(err, port.ErrNotFound) {
		return state.NoticeNotFound
	}
	return fallback
}

func (c *Coordinator) notify(kind state.NoticeKind, key, msg string) {
	c.notices = append(c.notices, state.Notice{
		ID:      uuid.NewString(),
		Kind:    kind,
		Key:     key,
		Message: msg,
		At:      c.now(),
	})
	if len(c.notices) > maxNotices {
		c.notices = c.notices[len(c.notices)-maxNotices:]
	}
}

func (c *Coordinator) publish() {
	raw := c.raw
	raw.Pending = make(map[string]bool, len(c.cmds))
	for k := range c.cmds {
		raw.Pending[k.device] = true
	}

	now := c.now()
	snap := state.Derive(raw, c.policy, now)
	snap.Phases = make(map[state.Slot]state.Phase, len(c.phases))
	for k, v := range c.phases {
		snap.Phases[k] = v
	}
	snap.Stale = make(map[state.Slot]bool, len(c.stale))
	for k, v := range c.stale {
		snap.Stale[k] = v
	}
	snap.Notices = append([]state.Notice(nil), c.notices...)
	c.version++
	snap.Version = c.version
	snap.UpdatedAt = now

	c.current.Store(&snap)
	if c.recorder != nil {
		c.recorder.RecordSnapshot(snap)
	}

	c.subMu.Lock()
	subs := append([]subscriber(nil), c.subs...)
	c.subMu.Unlock()
	for _, s := range subs {
		s.fn(snap)
	}
}
