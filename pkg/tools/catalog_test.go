package tools

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halden/meeple/pkg/campaign"
	"github.com/halden/meeple/pkg/dice"
	"github.com/halden/meeple/pkg/journal"
	"github.com/halden/meeple/pkg/namegen"
	"github.com/halden/meeple/pkg/rules"
)

type fakeNotifier struct {
	sent map[string]string
}

func (f *fakeNotifier) SendDirect(_ context.Context, userID, text string) error {
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[userID] = text
	return nil
}

type stubSummarizer struct{}

func (stubSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	return "A short recap.", nil
}

func newCatalogRegistry(t *testing.T) (*Registry, *campaign.Store, *fakeNotifier) {
	t.Helper()
	dir := t.TempDir()

	store, err := campaign.OpenStore(filepath.Join(dir, "campaign.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	notifier := &fakeNotifier{}
	deps := Deps{
		Dice:  dice.NewSeeded(1),
		Names: namegen.NewSeeded(1),
		Store: store,
		Journal: journal.New(journal.Config{
			SessionsDir:   filepath.Join(dir, "sessions"),
			SecretsPath:   filepath.Join(dir, "secrets_log.md"),
			WorldInfoPath: filepath.Join(dir, "world_info.md"),
			Logger:        zerolog.Nop(),
		}),
		Rules:      rules.NewClient(zerolog.Nop()),
		Summarizer: stubSummarizer{},
		Notifier:   notifier,
		Logger:     zerolog.Nop(),
	}

	reg, err := NewRegistry(Catalog(deps), zerolog.Nop())
	require.NoError(t, err)
	return reg, store, notifier
}

func TestCatalog(t *testing.T) {
	reg, store, notifier := newCatalogRegistry(t)
	ctx := context.Background()
	env := Env{Campaign: "test", UserID: "u1"}

	t.Run("should register the full tool set", func(t *testing.T) {
		names := reg.Names()
		for _, expected := range []string{
			"roll_dice", "request_player_roll", "generate_name",
			"log_event", "log_secret", "read_campaign_log", "update_world_info",
			"search_rules", "lookup_rule", "find_monsters_by_cr",
			"manage_inventory", "manage_quests", "list_quests",
			"initialize_combat", "track_combat_change", "get_combat_status", "end_combat",
			"start_new_session", "end_session_and_compact", "lookup_past_session",
			"complete_setup_step", "submit_character_sheet", "send_dm",
		} {
			assert.Contains(t, names, expected)
		}
	})

	t.Run("should roll dice", func(t *testing.T) {
		out := reg.Execute(ctx, env, "roll_dice", map[string]interface{}{"expression": "2d6+1"})
		assert.NotContains(t, out, "Error")
		assert.Contains(t, out, "+1")
	})

	t.Run("should reject bad dice expressions as error text", func(t *testing.T) {
		out := reg.Execute(ctx, env, "roll_dice", map[string]interface{}{"expression": "banana"})
		assert.Contains(t, out, "Error:")
	})

	t.Run("should phrase player roll requests", func(t *testing.T) {
		out := reg.Execute(ctx, env, "request_player_roll", map[string]interface{}{
			"character": "Brom",
			"roll":      "a DC 15 Strength check",
			"reason":    "to force the door",
		})
		assert.Equal(t, "Brom, please roll a DC 15 Strength check. (to force the door)", out)
	})

	t.Run("should log and read campaign events", func(t *testing.T) {
		out := reg.Execute(ctx, env, "log_event", map[string]interface{}{"text": "The bridge collapsed."})
		assert.Equal(t, "Event logged.", out)

		log := reg.Execute(ctx, env, "read_campaign_log", nil)
		assert.Contains(t, log, "The bridge collapsed.")
	})

	t.Run("should manage inventory", func(t *testing.T) {
		out := reg.Execute(ctx, env, "manage_inventory", map[string]interface{}{
			"character": "Brom", "action": "add", "item": "rope", "quantity": float64(2),
		})
		assert.Equal(t, "Brom now carries 2x rope.", out)

		out = reg.Execute(ctx, env, "manage_inventory", map[string]interface{}{
			"character": "Brom", "action": "list",
		})
		assert.Contains(t, out, "2x rope")
	})

	t.Run("should run combat through its lifecycle", func(t *testing.T) {
		out := reg.Execute(ctx, env, "initialize_combat", map[string]interface{}{
			"combatants": []interface{}{"Brom, 14, 30", "Goblin, 18, 7, enemy"},
		})
		assert.Contains(t, out, "Combat started.")
		assert.Contains(t, out, "| Goblin | 18 | 7/7 | - | enemy |")

		out = reg.Execute(ctx, env, "track_combat_change", map[string]interface{}{
			"name": "Goblin", "hp_change": float64(-7),
		})
		assert.Equal(t, "Goblin: 0/7 HP - down!", out)

		out = reg.Execute(ctx, env, "end_combat", nil)
		assert.Equal(t, "Combat ended.", out)

		out = reg.Execute(ctx, env, "get_combat_status", nil)
		assert.Equal(t, "No combat in progress.", out)
	})

	t.Run("should track quests", func(t *testing.T) {
		out := reg.Execute(ctx, env, "manage_quests", map[string]interface{}{
			"title": "Find the heirloom", "details": "Lost in the mire.",
		})
		assert.Equal(t, `Quest "Find the heirloom" is now active.`, out)

		out = reg.Execute(ctx, env, "list_quests", nil)
		assert.Contains(t, out, "[active] Find the heirloom")
	})

	t.Run("should advance the setup wizard monotonically", func(t *testing.T) {
		out := reg.Execute(ctx, env, "complete_setup_step", map[string]interface{}{"step": float64(1)})
		assert.Equal(t, "Setup step 1 complete.", out)

		out = reg.Execute(ctx, env, "complete_setup_step", map[string]interface{}{"step": float64(1)})
		assert.Equal(t, "Step 1 was already complete.", out)

		out = reg.Execute(ctx, env, "complete_setup_step", map[string]interface{}{"step": float64(4)})
		assert.Equal(t, "Setup complete. The campaign is ready to play.", out)

		out = reg.Execute(ctx, env, "complete_setup_step", map[string]interface{}{"step": float64(9)})
		assert.Contains(t, out, "Error:")
	})

	t.Run("should store character sheets with the submitting owner", func(t *testing.T) {
		out := reg.Execute(ctx, env, "submit_character_sheet", map[string]interface{}{
			"character": "Brom",
			"sheet":     map[string]interface{}{"class": "fighter", "level": float64(3)},
		})
		assert.Equal(t, "Character sheet for Brom saved.", out)
	})

	t.Run("should send private messages through the notifier", func(t *testing.T) {
		out := reg.Execute(ctx, env, "send_dm", map[string]interface{}{
			"user_id": "u2", "message": "You alone notice the amulet glow.",
		})
		assert.Equal(t, "Private message sent.", out)
		assert.Equal(t, "You alone notice the amulet glow.", notifier.sent["u2"])
	})

	t.Run("should resolve DM recipients by character name", func(t *testing.T) {
		require.NoError(t, store.ClaimCharacter("u3", "telegram", "Dara"))

		out := reg.Execute(ctx, env, "send_dm", map[string]interface{}{
			"character": "Dara", "message": "A voice whispers your name.",
		})
		assert.Equal(t, "Private message sent.", out)
		assert.Equal(t, "A voice whispers your name.", notifier.sent["u3"])

		out = reg.Execute(ctx, env, "send_dm", map[string]interface{}{
			"character": "Nobody", "message": "lost",
		})
		assert.Contains(t, out, "Error:")
		assert.Contains(t, out, "no player found")
	})

	t.Run("should wrap up a session and report the recap", func(t *testing.T) {
		out := reg.Execute(ctx, env, "end_session_and_compact", nil)
		assert.Contains(t, out, "wrapped up")
		assert.Contains(t, out, "A short recap.")
	})

	t.Run("should report missing archive for past session lookups", func(t *testing.T) {
		out := reg.Execute(ctx, env, "lookup_past_session", map[string]interface{}{"query": "dragon"})
		assert.Contains(t, out, "Error:")
		assert.Contains(t, out, "no session archive")
	})

	t.Run("should generate names", func(t *testing.T) {
		out := reg.Execute(ctx, env, "generate_name", map[string]interface{}{
			"race": "dwarf", "count": float64(3),
		})
		assert.NotContains(t, out, "Error")
		assert.Len(t, strings.Split(out, ", "), 3)
	})
}
