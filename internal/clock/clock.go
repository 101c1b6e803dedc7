package clock

import "time"

// Clock abstracts wall-clock reads so expiry checks can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystemClock returns a Clock backed by the real wall clock.
func NewSystemClock() Clock {
	return systemClock{}
}
