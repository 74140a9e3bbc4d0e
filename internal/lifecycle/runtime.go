package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type named struct {
	name      string
	component Component
}

// Runtime starts components in registration order and stops them in reverse.
type Runtime struct {
	components []named
	started    []named
}

func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) getLogEntry() *log.Entry {
	return log.WithField("object", "Runtime")
}

func (r *Runtime) Register(name string, component Component) {
	if component == nil {
		return
	}
	r.components = append(r.components, named{name: name, component: component})
}

func (r *Runtime) Start(ctx context.Context) error {
	r.started = make([]named, 0, len(r.components))
	for _, c := range r.components {
		began := time.Now()
		if err := c.component.Start(ctx); err != nil {
			_ = r.stop(ctx)
			return fmt.Errorf("start %s: %w", c.name, err)
		}
		r.getLogEntry().WithField("component", c.name).WithField("took", time.Since(began).String()).Debug("started")
		r.started = append(r.started, c)
	}
	return nil
}

// Stop stops every started component even when some of them fail.
func (r *Runtime) Stop(ctx context.Context) error {
	return r.stop(ctx)
}

func (r *Runtime) stop(ctx context.Context) error {
	var stopErr error
	for i := len(r.started) - 1; i >= 0; i-- {
		c := r.started[i]
		if err := c.component.Stop(ctx); err != nil {
			r.getLogEntry().WithField("component", c.name).WithField("error", err.Error()).Warn("stop failed")
			stopErr = errors.Join(stopErr, fmt.Errorf("stop %s: %w", c.name, err))
			continue
		}
		r.getLogEntry().WithField("component", c.name).Debug("stopped")
	}
	r.started = nil
	return stopErr
}
