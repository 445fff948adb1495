package session

import (
	"fmt"
	"math/rand/v2"
)

// Mode is the policy used to pick the next and previous track
type Mode int

const (
	ModeSequential Mode = iota
	ModeShuffle
	ModeRepeatOne
	ModeRepeatAll
)

var modeNames = map[Mode]string{
	ModeSequential: "sequential",
	ModeShuffle:    "shuffle",
	ModeRepeatOne:  "repeat-one",
	ModeRepeatAll:  "repeat-all",
}

// Modes lists every mode in display order
var Modes = []Mode{ModeSequential, ModeShuffle, ModeRepeatOne, ModeRepeatAll}

// String returns the canonical name of the mode
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Valid reports whether m is one of the known modes
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// Cycle returns the mode that follows m in display order
func (m Mode) Cycle() Mode {
	return Modes[(int(m)+1)%len(Modes)]
}

// ParseMode converts a canonical mode name into a Mode
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return ModeSequential, &ValidationError{Op: "parse mode", Err: ErrInvalidMode}
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, &ValidationError{Op: "marshal mode", Err: ErrInvalidMode}
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// NextIndex returns the index that follows i in a queue of length n.
// ok is false when there is no next track.
func NextIndex(i, n int, mode Mode, rng *rand.Rand) (next int, ok bool) {
	if n <= 0 {
		return 0, false
	}

	switch mode {
	case ModeShuffle:
		return shuffleIndex(i, n, rng), true
	case ModeRepeatOne:
		return i, true
	case ModeRepeatAll:
		return (i + 1) % n, true
	default:
		if i < n-1 {
			return i + 1, true
		}
		return 0, false
	}
}

// PreviousIndex returns the index that precedes i in a queue of length n.
// ok is false when there is no previous track.
func PreviousIndex(i, n int, mode Mode, rng *rand.Rand) (prev int, ok bool) {
	if n <= 0 {
		return 0, false
	}

	switch mode {
	case ModeShuffle:
		return shuffleIndex(i, n, rng), true
	case ModeRepeatOne:
		return i, true
	case ModeRepeatAll:
		if i > 0 {
			return i - 1, true
		}
		return n - 1, true
	default:
		if i > 0 {
			return i - 1, true
		}
		return 0, false
	}
}

// shuffleIndex picks uniformly from [0,n) excluding i. Indices above i are
// shifted down by one so a single draw covers the n-1 candidates.
func shuffleIndex(i, n int, rng *rand.Rand) int {
	if n == 1 {
		return 0
	}

	if i < 0 || i >= n {
		return intN(rng, n)
	}

	r := intN(rng, n-1)
	if r >= i {
		r++
	}
	return r
}

func intN(rng *rand.Rand, n int) int {
	if rng != nil {
		return rng.IntN(n)
	}
	return rand.IntN(n)
}
