package controller

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"autotrader/src/repository"
)

var (
	ErrUnknownComponent = errors.New("unknown component")
	ErrStopTimeout      = errors.New("component did not stop in time")
)

// RunFunc is a long-running worker. It must return once ctx is done.
type RunFunc func(ctx context.Context) error

// ComponentStatus is the control-surface view of one worker.
type ComponentStatus struct {
	Name      string     `json:"name"`
	Running   bool       `json:"running"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

type component struct {
	name string
	run  RunFunc

	cancel    context.CancelFunc
	done      chan struct{}
	startedAt *time.Time
	stoppedAt *time.Time
	lastErr   error
}

// Supervisor starts and stops named workers on demand. Each worker gets its
// own context derived from the supervisor's parent.
type Supervisor struct {
	parent      context.Context
	exceptions  *repository.ExceptionRepository
	stopTimeout time.Duration

	mu         sync.Mutex
	components map[string]*component
}

func NewSupervisor(parent context.Context, exceptions *repository.ExceptionRepository, stopTimeout time.Duration) *Supervisor {
	if stopTimeout <= 0 {
		stopTimeout = 30 * time.Second
	}
	return &Supervisor{
		parent:      parent,
		exceptions:  exceptions,
		stopTimeout: stopTimeout,
		components:  make(map[string]*component),
	}
}

// Register adds a worker. Registering a name twice replaces the stopped
// entry; replacing a running one is an error.
func (s *Supervisor) Register(name string, run RunFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.components[name]; ok && c.done != nil {
		return fmt.Errorf("component %s is running", name)
	}
	s.components[name] = &component{name: name, run: run}
	return nil
}

// Start launches a worker. Starting a running worker is a no-op.
func (s *Supervisor) Start(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.components[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	if c.done != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(s.parent)
	now := time.Now()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.startedAt = &now
	c.stoppedAt = nil
	c.lastErr = nil

	go s.run(ctx, c, c.done)

	logger.WithField("component", name).Info("component started")
	return nil
}

func (s *Supervisor) run(ctx context.Context, c *component, done chan struct{}) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			exc := CapturePanic(ctx, s.exceptions, c.name, "run", r)
			err = errors.New(exc.Message)
		}
		s.mu.Lock()
		now := time.Now()
		c.lastErr = err
		c.stoppedAt = &now
		c.cancel = nil
		c.done = nil
		s.mu.Unlock()
		close(done)
	}()

	err = c.run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		Capture(ctx, s.exceptions, c.name, "run", "error", err, nil)
	}
}

// Stop cancels a worker and waits for it to return.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	c, ok := s.components[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	done, cancel := c.done, c.cancel
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		logger.WithField("component", name).Info("component stopped")
		return nil
	case <-time.After(s.stopTimeout):
		return fmt.Errorf("%w: %s", ErrStopTimeout, name)
	}
}

func (s *Supervisor) StartAll(names ...string) error {
	if len(names) == 0 {
		names = s.names()
	}
	var errs []error
	for _, n := range names {
		if err := s.Start(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Supervisor) StopAll() error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, n := range s.names() {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := s.Stop(name); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Status returns one worker's status.
func (s *Supervisor) Status(name string) (ComponentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.components[name]
	if !ok {
		return ComponentStatus{}, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	return c.statusLocked(), nil
}

// Statuses lists every worker sorted by name.
func (s *Supervisor) Statuses() []ComponentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ComponentStatus, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c.statusLocked())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *component) statusLocked() ComponentStatus {
	st := ComponentStatus{
		Name:      c.name,
		Running:   c.done != nil,
		StartedAt: c.startedAt,
		StoppedAt: c.stoppedAt,
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

func (s *Supervisor) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.components))
	for n := range s.components {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
