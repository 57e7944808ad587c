// Package namegen generates random fantasy names for NPCs and places.
package namegen

import (
	"math/rand"
	"strings"
	"time"
)

var (
	placeRoots = []string{
		"Oak", "Deep", "Shadow", "Gold", "High", "Stone", "River", "Green", "Winter", "Summer",
		"Iron", "Black", "White", "Gray", "Storm", "Cloud", "Sun", "Moon", "Star", "Fire",
		"Frost", "Mist", "Raven", "Wolf", "Dragon", "Amber", "Silver", "Night", "Dawn",
	}
	placeSuffixes = []string{
		"haven", "fell", "wood", "run", "crest", "ford", "bury", "ton", "field", "bridge",
		"glen", "peak", "hold", "spire", "watch", "keep", "gate", "port", "marsh", "vale",
		"dale", "ridge", "point", "well", "drift", "bay", "rock", "cliff",
	}

	elfFirst   = []string{"Ael", "Cael", "Ely", "Fae", "Gal", "Ill", "Lor", "Nym", "Syl", "Thal"}
	elfSecond  = []string{"adriel", "anor", "arion", "endil", "ithil", "lamir", "orfin", "uviel", "wynn", "zaleth"}
	dwarfFirst = []string{"Bal", "Dur", "Gim", "Gro", "Kaz", "Mor", "Thra", "Tor", "Brom", "Hald"}
	dwarfLast  = []string{"in", "im", "li", "nar", "rik", "grim", "dain", "dur", "bek", "mund"}
	humanFirst = []string{"Aldric", "Beren", "Cedric", "Dara", "Elena", "Gareth", "Isolde", "Marek", "Rowena", "Tomas"}
	humanLast  = []string{"Ashford", "Blackwood", "Carver", "Fletcher", "Hargrove", "Mercer", "Thorne", "Vance", "Wilder", "Crane"}
	hobbitTop  = []string{"Bilbo", "Drogo", "Falco", "Lobelia", "Mungo", "Peony", "Polo", "Rosie", "Togo", "Wilcome"}
	hobbitLast = []string{"Burrows", "Bracegirdle", "Goodbody", "Greenhill", "Proudfoot", "Took", "Underhill", "Whitfoot"}
)

// Generator produces themed random names.
type Generator struct {
	rng *rand.Rand
}

// New creates a Generator seeded from the current time.
func New() *Generator {
	return &Generator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeeded creates a deterministic Generator for tests.
func NewSeeded(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) pick(list []string) string {
	return list[g.rng.Intn(len(list))]
}

func (g *Generator) one(race string) string {
	switch strings.ToLower(race) {
	case "place", "town", "city", "location", "village":
		return g.pick(placeRoots) + g.pick(placeSuffixes)
	case "elf":
		return g.pick(elfFirst) + g.pick(elfSecond)
	case "dwarf":
		return g.pick(dwarfFirst) + g.pick(dwarfLast)
	case "human":
		return g.pick(humanFirst) + " " + g.pick(humanLast)
	case "hobbit":
		return g.pick(hobbitTop) + " " + g.pick(hobbitLast)
	default:
		races := []string{"human", "elf", "dwarf", "hobbit"}
		return g.one(races[g.rng.Intn(len(races))])
	}
}

// Generate returns count names of the requested race, comma-joined.
// Count is clamped to [1, 10].
func (g *Generator) Generate(race string, count int) string {
	if count < 1 {
		count = 1
	}
	if count > 10 {
		count = 10
	}

	names := make([]string, count)
	for i := range names {
		names[i] = g.one(race)
	}
	return strings.Join(names, ", ")
}
