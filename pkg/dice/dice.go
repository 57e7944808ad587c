package dice

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result holds the detailed outcome of a dice roll.
type Result struct {
	Expression string    `json:"expression"`
	Rolls      []int     `json:"rolls"`
	Modifier   int       `json:"modifier"`
	Total      int       `json:"total"`
	Timestamp  time.Time `json:"timestamp"`
}

// String renders the result in the log-friendly form "14 ([6 3] +5)".
func (r Result) String() string {
	parts := make([]string, len(r.Rolls))
	for i, roll := range r.Rolls {
		parts[i] = strconv.Itoa(roll)
	}
	mod := ""
	if r.Modifier > 0 {
		mod = fmt.Sprintf(" +%d", r.Modifier)
	} else if r.Modifier < 0 {
		mod = fmt.Sprintf(" %d", r.Modifier)
	}
	return fmt.Sprintf("%d ([%s]%s)", r.Total, strings.Join(parts, " "), mod)
}

var exprPattern = regexp.MustCompile(`^(\d+)d(\d+)([+-]\d+)?$`)

const maxDice = 100

// Roller rolls dice expressions. The zero value is not usable; construct with New.
type Roller struct {
	rng *rand.Rand
}

// New creates a Roller seeded from the current time.
func New() *Roller {
	return &Roller{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewSeeded creates a deterministic Roller for tests.
func NewSeeded(seed int64) *Roller {
	return &Roller{rng: rand.New(rand.NewSource(seed))}
}

// Roll parses and rolls an expression of the form NdM, NdM+K, or NdM-K.
func (r *Roller) Roll(expression string) (Result, error) {
	normalized := strings.ToLower(strings.ReplaceAll(expression, " ", ""))

	match := exprPattern.FindStringSubmatch(normalized)
	if match == nil {
		return Result{}, fmt.Errorf("invalid dice expression: %s", expression)
	}

	numDice, err := strconv.Atoi(match[1])
	if err != nil || numDice < 1 || numDice > maxDice {
		return Result{}, fmt.Errorf("invalid dice count in expression: %s", expression)
	}

	dieType, err := strconv.Atoi(match[2])
	if err != nil || dieType < 2 {
		return Result{}, fmt.Errorf("invalid die type in expression: %s", expression)
	}

	modifier := 0
	if match[3] != "" {
		modifier, _ = strconv.Atoi(match[3])
	}

	rolls := make([]int, numDice)
	total := modifier
	for i := range rolls {
		rolls[i] = r.rng.Intn(dieType) + 1
		total += rolls[i]
	}

	return Result{
		Expression: normalized,
		Rolls:      rolls,
		Modifier:   modifier,
		Total:      total,
		Timestamp:  time.Now(),
	}, nil
}
