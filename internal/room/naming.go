package room

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"
)

// MaxNameRunes bounds a display name proposed by a participant.
const MaxNameRunes = 32

// Naming policies understood by NamerByPolicy.
const (
	PolicyWords = "words"
	PolicyGuest = "guest"
)

// Namer assigns display names to members that did not propose one.
// joins is the number of joins the room has seen so far, including this one.
type Namer interface {
	Name(joins int) string
}

// NamerFunc adapts a function to Namer.
type NamerFunc func(joins int) string

func (f NamerFunc) Name(joins int) string { return f(joins) }

// WordsNamer picks "Adjective Animal" pairs, e.g. "Sleepy Panda".
var WordsNamer Namer = NamerFunc(func(int) string {
	adj := adjectives[randomIndex(len(adjectives))]
	animal := animals[randomIndex(len(animals))]
	return titleCase(adj) + " " + titleCase(animal)
})

// GuestNamer numbers members per room: Guest-1, Guest-2, ...
var GuestNamer Namer = NamerFunc(func(joins int) string {
	return fmt.Sprintf("Guest-%d", joins)
})

// NamerByPolicy resolves a configured naming policy.
func NamerByPolicy(policy string) (Namer, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", PolicyWords:
		return WordsNamer, nil
	case PolicyGuest:
		return GuestNamer, nil
	default:
		return nil, fmt.Errorf("unknown naming policy %q", policy)
	}
}

// NewID creates a random, memorable room id such as "brave-otter-cozy".
func NewID() string {
	return adjectives[randomIndex(len(adjectives))] + "-" +
		animals[randomIndex(len(animals))] + "-" +
		adjectives[randomIndex(len(adjectives))]
}

// cleanName returns the proposed name if it can be used verbatim.
func cleanName(proposed string) (string, bool) {
	name := strings.TrimSpace(proposed)
	if name == "" || utf8.RuneCountInString(name) > MaxNameRunes {
		return "", false
	}
	return name, true
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("room: random index: %v", err))
	}
	return int(n.Int64())
}
