package match

import "github.com/gocraft2-project/gocraft2/internal/protocol"

// Bot receives the per-tick callback for one participant. Implementations
// inspect the observation and queue whatever analysis they need; returning
// an error ends the match for everyone.
type Bot interface {
	OnStep(step *StepContext) error
}

// BotFunc adapts a plain function to the Bot interface.
type BotFunc func(step *StepContext) error

// OnStep calls f.
func (f BotFunc) OnStep(step *StepContext) error {
	return f(step)
}

// StepContext is what a bot sees on one tick, between the observation
// arriving and the step request going out.
type StepContext struct {
	PlayerID    uint32
	GameLoop    uint32
	Observation *protocol.ResponseObservation
}
