package dice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoll(t *testing.T) {
	roller := NewSeeded(42)

	t.Run("should roll simple expression", func(t *testing.T) {
		result, err := roller.Roll("1d20")
		require.NoError(t, err)

		assert.Len(t, result.Rolls, 1)
		assert.GreaterOrEqual(t, result.Rolls[0], 1)
		assert.LessOrEqual(t, result.Rolls[0], 20)
		assert.Equal(t, result.Rolls[0], result.Total)
	})

	t.Run("should apply positive modifier", func(t *testing.T) {
		result, err := roller.Roll("2d6+5")
		require.NoError(t, err)

		assert.Equal(t, 5, result.Modifier)
		assert.Len(t, result.Rolls, 2)
		assert.Equal(t, result.Rolls[0]+result.Rolls[1]+5, result.Total)
	})

	t.Run("should apply negative modifier", func(t *testing.T) {
		result, err := roller.Roll("1d4-2")
		require.NoError(t, err)

		assert.Equal(t, -2, result.Modifier)
		assert.Equal(t, result.Rolls[0]-2, result.Total)
	})

	t.Run("should normalize case and spaces", func(t *testing.T) {
		result, err := roller.Roll(" 1D8 + 3 ")
		require.NoError(t, err)

		assert.Equal(t, "1d8+3", result.Expression)
	})

	t.Run("should reject malformed expressions", func(t *testing.T) {
		for _, expr := range []string{"", "d20", "1d", "twenty", "1d20+", "1d20++1"} {
			_, err := roller.Roll(expr)
			assert.Error(t, err, "expression %q", expr)
		}
	})

	t.Run("should reject absurd dice counts", func(t *testing.T) {
		_, err := roller.Roll("9999d6")
		assert.Error(t, err)
	})

	t.Run("should reject one-sided dice", func(t *testing.T) {
		_, err := roller.Roll("1d1")
		assert.Error(t, err)
	})
}

func TestResultString(t *testing.T) {
	t.Run("should format rolls with modifier", func(t *testing.T) {
		r := Result{Rolls: []int{6, 3}, Modifier: 5, Total: 14}
		assert.Equal(t, "14 ([6 3] +5)", r.String())
	})

	t.Run("should omit zero modifier", func(t *testing.T) {
		r := Result{Rolls: []int{6}, Modifier: 0, Total: 6}
		assert.Equal(t, "6 ([6])", r.String())
	})
}
