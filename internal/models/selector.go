package models

import (
	"errors"
	"fmt"
	"strconv"
)

var ErrUnknownSelector = errors.New("unknown profile selector")

type SelectorKind int

const (
	SelectorProfile SelectorKind = iota
	SelectorNew
	SelectorLastState
	SelectorSelectAll
	SelectorSelectNone
	SelectorEmpty
)

var sentinelCodes = map[SelectorKind]string{
	SelectorNew:        "a",
	SelectorLastState:  "b",
	SelectorSelectAll:  "c",
	SelectorSelectNone: "d",
	SelectorEmpty:      "e",
}

// Selector is the value of the profile drop-down: either a stored profile id
// or one of the five pseudo-profiles.
type Selector struct {
	Kind      SelectorKind
	ProfileID int64
}

var (
	SelectNew       = Selector{Kind: SelectorNew}
	SelectLastState = Selector{Kind: SelectorLastState}
	SelectAll       = Selector{Kind: SelectorSelectAll}
	SelectNone      = Selector{Kind: SelectorSelectNone}
	SelectEmpty     = Selector{Kind: SelectorEmpty}
)

func SelectProfile(id int64) Selector {
	return Selector{Kind: SelectorProfile, ProfileID: id}
}

func ParseSelector(raw string) (Selector, error) {
	for kind, code := range sentinelCodes {
		if raw == code {
			return Selector{Kind: kind}, nil
		}
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return Selector{}, fmt.Errorf("%w: %q", ErrUnknownSelector, raw)
	}
	return SelectProfile(id), nil
}

func (s Selector) IsSentinel() bool {
	return s.Kind != SelectorProfile
}

func (s Selector) String() string {
	if s.Kind == SelectorProfile {
		return strconv.FormatInt(s.ProfileID, 10)
	}
	return sentinelCodes[s.Kind]
}

func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Selector) UnmarshalText(text []byte) error {
	parsed, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
