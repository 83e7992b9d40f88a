package ventilation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thatsimonsguy/greenhouse/internal/state"
	"github.com/thatsimonsguy/greenhouse/internal/store"
)

var ErrNotManual = errors.New("manual fan speeds are only accepted in manual mode")

// retryBackoff is how long a rejected target is left alone before it is
// sent to the same fan again.
const retryBackoff = time.Minute

type rejection struct {
	target int
	at     time.Time
}

// FanCommander issues a fan speed command and reports whether it applied.
type FanCommander interface {
	SetFanSpeed(ctx context.Context, deviceID string, percent int) bool
}

type Controller struct {
	fans  FanCommander
	store *store.Store[Settings]
	now   func() time.Time

	// update serialises read-modify-save of the settings.
	update sync.Mutex

	mu        sync.Mutex
	settings  Settings
	scheduled *int
	last      *state.Snapshot
	cron      *cron.Cron
	rejected  map[string]rejection

	snapshots chan state.Snapshot
}

// New loads settings from st, falling back to defaults when none are saved.
func New(fans FanCommander, st *store.Store[Settings]) (*Controller, error) {
	settings, err := st.LoadOr(DefaultSettings())
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		fans:      fans,
		store:     st,
		now:       time.Now,
		settings:  settings,
		rejected:  make(map[string]rejection),
		snapshots: make(chan state.Snapshot, 1),
	}, nil
}

func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.clone()
}

// UpdateSettings validates, persists and activates s.
func (c *Controller) UpdateSettings(s Settings) error {
	c.update.Lock()
	defer c.update.Unlock()
	return c.save(s)
}

func (c *Controller) save(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := c.store.Save(s); err != nil {
		return fmt.Errorf("save ventilation settings: %w", err)
	}

	c.mu.Lock()
	c.settings = s.clone()
	if s.Mode != ModeSchedule {
		c.scheduled = nil
	}
	running := c.cron != nil
	c.mu.Unlock()

	if running {
		c.reschedule()
	}
	log.Info().Str("mode", string(s.Mode)).Msg("Ventilation settings updated")
	return nil
}

func (c *Controller) SetMode(m Mode) error {
	c.update.Lock()
	defer c.update.Unlock()

	s := c.Settings()
	s.Mode = m
	return c.save(s)
}

// SetManualSpeed records and applies a manual speed for one fan.
func (c *Controller) SetManualSpeed(ctx context.Context, fanID string, percent int) (bool, error) {
	if err := c.recordManualSpeed(fanID, percent); err != nil {
		return false, err
	}
	return c.fans.SetFanSpeed(ctx, fanID, percent), nil
}

func (c *Controller) recordManualSpeed(fanID string, percent int) error {
	c.update.Lock()
	defer c.update.Unlock()

	s := c.Settings()
	if s.Mode != ModeManual {
		return ErrNotManual
	}
	if !validSpeed(percent) {
		return fmt.Errorf("%w: fan speed %d out of range", ErrInvalidSettings, percent)
	}
	if s.ManualSpeeds == nil {
		s.ManualSpeeds = make(map[string]int)
	}
	s.ManualSpeeds[fanID] = percent
	return c.save(s)
}

// Observe is a coordinator subscriber. It keeps only the newest snapshot
// and never blocks.
func (c *Controller) Observe(snap state.Snapshot) {
	select {
	case c.snapshots <- snap:
	default:
		select {
		case <-c.snapshots:
		default:
		}
		select {
		case c.snapshots <- snap:
		default:
		}
	}
}

// Run applies targets for every observed snapshot and drives the schedule
// until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	c.mu.Lock()
	c.cron = cron.New()
	c.mu.Unlock()
	c.reschedule()
	c.cron.Start()
	defer func() {
		<-c.cron.Stop().Done()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-c.snapshots:
			c.mu.Lock()
			c.last = &snap
			mode := c.settings.Mode
			c.mu.Unlock()

			// manual speeds are pushed when set, not on every refresh
			if mode == ModeManual {
				continue
			}
			if _, err := c.Apply(ctx, snap); err != nil {
				log.Warn().Err(err).Msg("Ventilation apply incomplete")
			}
		}
	}
}

func (c *Controller) reschedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cron == nil {
		return
	}
	for _, e := range c.cron.Entries() {
		c.cron.Remove(e.ID)
	}
	for _, entry := range c.settings.Schedule {
		speed := entry.Speed
		spec := entry.Spec
		if _, err := c.cron.AddFunc(spec, func() { c.fire(spec, speed) }); err != nil {
			log.Error().Err(err).Str("spec", spec).Msg("Failed to schedule ventilation entry")
		}
	}
}

func (c *Controller) fire(spec string, speed int) {
	c.mu.Lock()
	if c.settings.Mode != ModeSchedule {
		c.mu.Unlock()
		return
	}
	c.scheduled = &speed
	last := c.last
	c.mu.Unlock()

	log.Info().Str("spec", spec).Int("speed", speed).Msg("Ventilation schedule fired")
	if last == nil {
		return
	}
	if _, err := c.Apply(context.Background(), *last); err != nil {
		log.Warn().Err(err).Msg("Scheduled ventilation apply incomplete")
	}
}

// Apply pushes the current targets to every fan concurrently. Fans already
// at their target, and fans that rejected the same target within
// retryBackoff, are left alone. The result maps fan id to whether the
// command applied.
func (c *Controller) Apply(ctx context.Context, snap state.Snapshot) (map[string]bool, error) {
	now := c.now()

	c.mu.Lock()
	settings := c.settings.clone()
	scheduled := c.scheduled
	rejected := make(map[string]rejection, len(c.rejected))
	for k, v := range c.rejected {
		rejected[k] = v
	}
	c.mu.Unlock()

	targets := Targets(settings, snap, scheduled, now)

	var mu sync.Mutex
	results := make(map[string]bool, len(targets))
	// One fan failing does not cancel the others.
	var g errgroup.Group
	for _, fan := range snap.Fans() {
		target, ok := targets[fan.ID]
		if !ok || (fan.FanSpeed != nil && *fan.FanSpeed == target) {
			continue
		}
		if r, seen := rejected[fan.ID]; seen && r.target == target && now.Sub(r.at) < retryBackoff {
			continue
		}
		id := fan.ID
		g.Go(func() error {
			applied := c.fans.SetFanSpeed(ctx, id, target)
			mu.Lock()
			results[id] = applied
			mu.Unlock()

			c.mu.Lock()
			if applied {
				delete(c.rejected, id)
			} else {
				c.rejected[id] = rejection{target: target, at: now}
			}
			c.mu.Unlock()

			if !applied {
				return fmt.Errorf("fan %s did not accept speed %d", id, target)
			}
			log.Debug().Str("fan_id", id).Int("speed", target).Msg("Ventilation target applied")
			return nil
		})
	}
	err := g.Wait()
	return results, err
}
