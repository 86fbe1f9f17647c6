package confirmation

import (
	"errors"
	"fmt"

	"github.com/okian/seatalloc/internal/domain/model"
)

// ErrUnknownTransition marks an event that has no edge from the current state.
var ErrUnknownTransition = errors.New("unknown transition")

func errUnknownTransition(s model.State, ev Event) error {
	return fmt.Errorf("%w: %s on %s", ErrUnknownTransition, ev, s)
}
