package drivelink

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/banshee-data/crowd-drive/internal/path"
	"github.com/banshee-data/crowd-drive/internal/world"
)

// AgentStore receives agent observations. *world.Tracker implements it.
type AgentStore interface {
	UpdateAgents(obs []world.Observation) error
	UpdatePaths(ups []world.PathUpdate) error
}

// PlanReceiver receives reference paths. *control.Controller implements
// it.
type PlanReceiver interface {
	SetPath(p path.Path)
	SplicePath(p path.Path)
}

// Router dispatches inbound link messages to their consumers. Nil
// consumers are skipped.
type Router struct {
	Sensor    *Sensor
	Agents    AgentStore
	Plans     PlanReceiver
	Emergency *EmergencyFlag
	Log       *zap.Logger

	handled, rejected atomic.Uint64
}

// Handle decodes and dispatches one line. Decode errors are returned;
// rejected agent entries are logged and the rest of the message applied.
func (r *Router) Handle(line string) error {
	m, err := Decode([]byte(line))
	if err != nil {
		r.rejected.Add(1)
		return err
	}
	r.handled.Add(1)
	log := r.logger()

	switch m.Type {
	case TypePose:
		if r.Sensor != nil {
			r.Sensor.UpdatePose(m.Pose(), m.StampTime(r.Sensor.Now()))
		}
	case TypeOdom:
		if r.Sensor != nil {
			r.Sensor.UpdateOdom(m.VX, m.VY, m.Heading)
		}
	case TypeAgents:
		if r.Agents != nil {
			if err := r.Agents.UpdateAgents(m.Observations()); err != nil {
				log.Warn("agent entries dropped", zap.Error(err))
			}
		}
	case TypeAgentPaths:
		if r.Agents != nil {
			if err := r.Agents.UpdatePaths(m.PathUpdates()); err != nil {
				log.Warn("agent path entries dropped", zap.Error(err))
			}
		}
	case TypePlan:
		if r.Plans == nil {
			break
		}
		p := m.Plan()
		if m.Splice {
			r.Plans.SplicePath(p)
		} else {
			r.Plans.SetPath(p)
		}
		log.Info("plan received", zap.Int("points", p.Len()), zap.Bool("splice", m.Splice))
	case TypeEmergency:
		if r.Emergency != nil {
			if r.Emergency.Asserted() != m.Asserted {
				log.Warn("emergency signal changed", zap.Bool("asserted", m.Asserted))
			}
			r.Emergency.Set(m.Asserted)
		}
	}
	return nil
}

// Run routes lines from link until ctx ends or the link closes.
func (r *Router) Run(ctx context.Context, link Link) error {
	id, ch := link.Subscribe()
	defer link.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.Handle(line); err != nil {
				r.logger().Warn("link message rejected", zap.Error(err))
			}
		}
	}
}

// Counts returns the number of handled and rejected lines.
func (r *Router) Counts() (handled, rejected uint64) {
	return r.handled.Load(), r.rejected.Load()
}

func (r *Router) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
