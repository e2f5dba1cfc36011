package hitl

import (
	"context"

	"github.com/carrywater/dronesim-ar-sub000/internal/logging"
	"github.com/carrywater/dronesim-ar-sub000/model"
)

// ConsoleCues renders HMI cues as log lines, giving a headless run a
// readable cue timeline in place of lights and sound.
type ConsoleCues struct {
	log logging.Logger
}

// NewConsoleCues builds a renderer writing through the given logger.
func NewConsoleCues(log logging.Logger) *ConsoleCues {
	if log == nil {
		log = logging.Noop()
	}
	return &ConsoleCues{log: log.With(logging.String("component", "hmi-cues"))}
}

// SetStatus logs the status cue change.
func (c *ConsoleCues) SetStatus(s model.HMIStatus) {
	c.log.Info(context.Background(), "hmi status", logging.String("status", s.String()))
}

// PlayLoop logs the start of a looping cue.
func (c *ConsoleCues) PlayLoop(id string) {
	c.log.Info(context.Background(), "cue loop started", logging.String("loop", id))
}

// StopLoop logs the end of a looping cue.
func (c *ConsoleCues) StopLoop(id string) {
	c.log.Info(context.Background(), "cue loop stopped", logging.String("loop", id))
}
