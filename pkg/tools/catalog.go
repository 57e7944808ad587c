package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/halden/meeple/pkg/archive"
	"github.com/halden/meeple/pkg/campaign"
	"github.com/halden/meeple/pkg/dice"
	"github.com/halden/meeple/pkg/journal"
	"github.com/halden/meeple/pkg/namegen"
	"github.com/halden/meeple/pkg/rules"
	"github.com/halden/meeple/pkg/schema"
)

// Notifier sends a private message to one user on the originating platform.
type Notifier interface {
	SendDirect(ctx context.Context, userID, text string) error
}

// Deps are the campaign-scoped services the catalogue binds to. Archive,
// Summarizer, and Notifier are optional; tools that need a missing dependency
// report that instead of failing the registry.
type Deps struct {
	Dice       *dice.Roller
	Names      *namegen.Generator
	Store      *campaign.Store
	Journal    *journal.Journal
	Rules      *rules.Client
	Archive    *archive.Archive
	Summarizer journal.Summarizer
	Notifier   Notifier
	Logger     zerolog.Logger
}

// Catalog builds the full tool set for one campaign session.
func Catalog(deps Deps) []Definition {
	return []Definition{
		rollDiceTool(deps),
		requestPlayerRollTool(deps),
		generateNameTool(deps),
		logEventTool(deps),
		logSecretTool(deps),
		readCampaignLogTool(deps),
		updateWorldInfoTool(deps),
		searchRulesTool(deps),
		lookupRuleTool(deps),
		findMonstersByCRTool(deps),
		manageInventoryTool(deps),
		manageQuestsTool(deps),
		listQuestsTool(deps),
		initializeCombatTool(deps),
		trackCombatChangeTool(deps),
		getCombatStatusTool(deps),
		endCombatTool(deps),
		startNewSessionTool(deps),
		endSessionAndCompactTool(deps),
		lookupPastSessionTool(deps),
		completeSetupStepTool(deps),
		submitCharacterSheetTool(deps),
		sendDMTool(deps),
	}
}

func rollDiceTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "roll_dice",
			Description: "Roll dice using standard notation, e.g. '1d20+5' or '3d6'.",
			Params: []schema.Param{
				{Name: "expression", Type: "string", Description: "Dice expression in NdM(+/-K) form"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			result, err := deps.Dice.Roll(strArg(args, "expression"))
			if err != nil {
				return "", err
			}
			if env.Debug {
				return fmt.Sprintf("%s = %s", result.Expression, result.String()), nil
			}
			return result.String(), nil
		},
	}
}

func requestPlayerRollTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "request_player_roll",
			Description: "Ask a player to make a roll themselves instead of rolling for them.",
			Params: []schema.Param{
				{Name: "character", Type: "string", Description: "Character being asked to roll"},
				{Name: "roll", Type: "string", Description: "What to roll, e.g. 'a DC 15 Dexterity save'"},
				{Name: "reason", Type: "string", Description: "Why the roll is needed", Default: ""},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			character := strArg(args, "character")
			roll := strArg(args, "roll")
			msg := fmt.Sprintf("%s, please roll %s.", character, roll)
			if reason := strArg(args, "reason"); reason != "" {
				msg += " (" + reason + ")"
			}
			return msg, nil
		},
	}
}

func generateNameTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "generate_name",
			Description: "Generate fantasy names for NPCs or places.",
			Params: []schema.Param{
				{Name: "race", Type: "string", Description: "elf, dwarf, human, hobbit, or place", Default: "human"},
				{Name: "count", Type: "integer", Description: "How many names, up to 10", Default: 1},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			return deps.Names.Generate(strArg(args, "race"), intArg(args, "count")), nil
		},
	}
}

func logEventTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "log_event",
			Description: "Record a notable event in the current session log.",
			Params: []schema.Param{
				{Name: "text", Type: "string", Description: "What happened"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			if err := deps.Journal.LogEvent(strArg(args, "text")); err != nil {
				return "", err
			}
			return "Event logged.", nil
		},
	}
}

func logSecretTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "log_secret",
			Description: "Record a facilitator-only note that players must never see.",
			Params: []schema.Param{
				{Name: "text", Type: "string", Description: "The secret to record"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			if err := deps.Journal.LogSecret(strArg(args, "text")); err != nil {
				return "", err
			}
			return "Secret noted.", nil
		},
	}
}

func readCampaignLogTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "read_campaign_log",
			Description: "Read a session log. Session 0 means the current session.",
			Params: []schema.Param{
				{Name: "session", Type: "integer", Description: "Session number, 0 for current", Default: 0},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			return deps.Journal.ReadSession(intArg(args, "session"))
		},
	}
}

func updateWorldInfoTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "update_world_info",
			Description: "Append lore, locations, or factions to the world info document.",
			Params: []schema.Param{
				{Name: "heading", Type: "string", Description: "Optional section heading", Default: ""},
				{Name: "text", Type: "string", Description: "The world info to record"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			if err := deps.Journal.AppendWorldInfo(strArg(args, "heading"), strArg(args, "text")); err != nil {
				return "", err
			}
			return "World info updated.", nil
		},
	}
}

func searchRulesTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "search_rules",
			Description: "Search the SRD for entries in a category by name.",
			Params: []schema.Param{
				{Name: "category", Type: "string", Enum: rules.Categories, Description: "Content category"},
				{Name: "query", Type: "string", Description: "Name fragment to search for", Default: ""},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			refs, err := deps.Rules.Search(ctx, strArg(args, "category"), strArg(args, "query"))
			if err != nil {
				return "", err
			}
			if len(refs) == 0 {
				return "No matching entries.", nil
			}
			names := make([]string, 0, len(refs))
			for _, ref := range refs {
				names = append(names, ref.Name)
			}
			return strings.Join(names, ", "), nil
		},
	}
}

func lookupRuleTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "lookup_rule",
			Description: "Fetch the full SRD entry for a spell, monster, item, or condition.",
			Params: []schema.Param{
				{Name: "category", Type: "string", Enum: rules.Categories, Description: "Content category"},
				{Name: "name", Type: "string", Description: "Entry name, e.g. 'Fireball'"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			return deps.Rules.Lookup(ctx, strArg(args, "category"), strArg(args, "name"))
		},
	}
}

func findMonstersByCRTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "find_monsters_by_cr",
			Description: "List SRD monsters within a challenge rating range.",
			Params: []schema.Param{
				{Name: "min_cr", Type: "number", Description: "Lowest challenge rating, e.g. 0.25"},
				{Name: "max_cr", Type: "number", Description: "Highest challenge rating, e.g. 5"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			refs, err := deps.Rules.MonstersByCR(ctx, floatArg(args, "min_cr"), floatArg(args, "max_cr"))
			if err != nil {
				return "", err
			}
			if len(refs) == 0 {
				return "No monsters in that challenge rating range.", nil
			}
			names := make([]string, 0, len(refs))
			for _, ref := range refs {
				names = append(names, ref.Name)
			}
			return strings.Join(names, ", "), nil
		},
	}
}

func manageInventoryTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "manage_inventory",
			Description: "Add or remove items from a character's inventory, or list it.",
			Params: []schema.Param{
				{Name: "character", Type: "string", Description: "Character or NPC name"},
				{Name: "action", Type: "string", Enum: []string{"add", "remove", "list"}},
				{Name: "item", Type: "string", Description: "Item name, unused for list", Default: ""},
				{Name: "quantity", Type: "integer", Description: "How many", Default: 1},
				{Name: "notes", Type: "string", Description: "Optional item notes", Default: ""},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			character := strArg(args, "character")
			switch strArg(args, "action") {
			case "list":
				items, err := deps.Store.Inventory(character)
				if err != nil {
					return "", err
				}
				if len(items) == 0 {
					return fmt.Sprintf("%s carries nothing of note.", character), nil
				}
				var lines []string
				for _, it := range items {
					line := fmt.Sprintf("%dx %s", it.Quantity, it.Item)
					if it.Notes != "" {
						line += " (" + it.Notes + ")"
					}
					lines = append(lines, line)
				}
				return strings.Join(lines, "\n"), nil
			case "add":
				qty, err := deps.Store.AdjustItem(character, strArg(args, "item"), intArg(args, "quantity"), strArg(args, "notes"))
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("%s now carries %dx %s.", character, qty, strArg(args, "item")), nil
			default:
				qty, err := deps.Store.AdjustItem(character, strArg(args, "item"), -intArg(args, "quantity"), strArg(args, "notes"))
				if err != nil {
					return "", err
				}
				if qty == 0 {
					return fmt.Sprintf("%s no longer carries any %s.", character, strArg(args, "item")), nil
				}
				return fmt.Sprintf("%s now carries %dx %s.", character, qty, strArg(args, "item")), nil
			}
		},
	}
}

func manageQuestsTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "manage_quests",
			Description: "Create a quest or update its status.",
			Params: []schema.Param{
				{Name: "title", Type: "string", Description: "Quest title"},
				{Name: "status", Type: "string", Enum: campaign.QuestStatuses, Default: "active"},
				{Name: "details", Type: "string", Description: "Quest details", Default: ""},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			title := strArg(args, "title")
			status := strArg(args, "status")
			if err := deps.Store.UpsertQuest(title, status, strArg(args, "details")); err != nil {
				return "", err
			}
			return fmt.Sprintf("Quest %q is now %s.", title, status), nil
		},
	}
}

func listQuestsTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "list_quests",
			Description: "List quests, optionally filtered by status.",
			Params: []schema.Param{
				{Name: "status", Type: "string", Description: "Filter: active, completed, failed, abandoned, or empty for all", Default: ""},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			quests, err := deps.Store.Quests(strArg(args, "status"))
			if err != nil {
				return "", err
			}
			if len(quests) == 0 {
				return "No quests recorded.", nil
			}
			var lines []string
			for _, q := range quests {
				line := fmt.Sprintf("[%s] %s", q.Status, q.Title)
				if q.Details != "" {
					line += ": " + q.Details
				}
				lines = append(lines, line)
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func initializeCombatTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "initialize_combat",
			Description: "Start combat with an initiative table. Each combatant is 'name, initiative, hp' with an optional trailing ', enemy'.",
			Params: []schema.Param{
				{Name: "combatants", Type: "array", Description: "Combatant entries like 'Brom, 14, 30' or 'Goblin, 18, 7, enemy'"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			entries, ok := args["combatants"].([]interface{})
			if !ok || len(entries) == 0 {
				return "", fmt.Errorf("combatants list is required")
			}

			combatants := make([]campaign.Combatant, 0, len(entries))
			for _, entry := range entries {
				line, ok := entry.(string)
				if !ok {
					return "", fmt.Errorf("combatant entries must be strings")
				}
				c, err := parseCombatant(line)
				if err != nil {
					return "", err
				}
				combatants = append(combatants, c)
			}

			if err := deps.Store.StartCombat(combatants); err != nil {
				return "", err
			}

			order, err := deps.Store.Combatants()
			if err != nil {
				return "", err
			}
			return "Combat started.\n" + campaign.RenderCombatTable(order), nil
		},
	}
}

func parseCombatant(line string) (campaign.Combatant, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return campaign.Combatant{}, fmt.Errorf("bad combatant entry %q: expected 'name, initiative, hp'", line)
	}

	name := strings.TrimSpace(parts[0])
	initiative, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return campaign.Combatant{}, fmt.Errorf("bad initiative in %q", line)
	}
	hp, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return campaign.Combatant{}, fmt.Errorf("bad hp in %q", line)
	}

	hostile := len(parts) > 3 && strings.EqualFold(strings.TrimSpace(parts[3]), "enemy")
	return campaign.Combatant{Name: name, Initiative: initiative, HP: hp, MaxHP: hp, Hostile: hostile}, nil
}

func trackCombatChangeTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "track_combat_change",
			Description: "Apply damage or healing to a combatant and update conditions. Use 'none' to clear conditions.",
			Params: []schema.Param{
				{Name: "name", Type: "string", Description: "Combatant name"},
				{Name: "hp_change", Type: "integer", Description: "Negative for damage, positive for healing", Default: 0},
				{Name: "conditions", Type: "string", Description: "New conditions, 'none' to clear, empty to leave unchanged", Default: ""},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			var conditions *string
			switch raw := strArg(args, "conditions"); raw {
			case "":
			case "none":
				empty := ""
				conditions = &empty
			default:
				conditions = &raw
			}

			c, err := deps.Store.UpdateCombatant(strArg(args, "name"), intArg(args, "hp_change"), conditions)
			if err != nil {
				return "", err
			}

			status := fmt.Sprintf("%s: %d/%d HP", c.Name, c.HP, c.MaxHP)
			if c.Conditions != "" {
				status += " (" + c.Conditions + ")"
			}
			if c.HP == 0 {
				status += " - down!"
			}
			return status, nil
		},
	}
}

func getCombatStatusTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "get_combat_status",
			Description: "Show the current initiative table.",
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			order, err := deps.Store.Combatants()
			if err != nil {
				return "", err
			}
			return campaign.RenderCombatTable(order), nil
		},
	}
}

func endCombatTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "end_combat",
			Description: "End the current combat and clear the initiative table.",
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			if err := deps.Store.EndCombat(); err != nil {
				return "", err
			}
			return "Combat ended.", nil
		},
	}
}

func startNewSessionTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "start_new_session",
			Description: "Begin a new numbered play session with a fresh log.",
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			n, err := deps.Journal.StartSession()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Session %d has begun.", n), nil
		},
	}
}

func endSessionAndCompactTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "end_session_and_compact",
			Description: "End the current session: write a recap into the log and archive it for later recall.",
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			if deps.Summarizer == nil {
				return "", fmt.Errorf("no summarizer configured")
			}

			n, summary, err := deps.Journal.CompactSession(ctx, deps.Summarizer)
			if err != nil {
				return "", err
			}

			if deps.Archive != nil {
				if err := deps.Archive.Index(ctx, n, summary); err != nil {
					deps.Logger.Warn().Int("session", n).Err(err).Msg("Failed to archive session recap")
				}
			}
			return fmt.Sprintf("Session %d wrapped up.\n\nRecap: %s", n, summary), nil
		},
	}
}

func lookupPastSessionTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "lookup_past_session",
			Description: "Search archived session recaps for past events.",
			Params: []schema.Param{
				{Name: "query", Type: "string", Description: "What to look for"},
				{Name: "limit", Type: "integer", Description: "Max results", Default: 3},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			if deps.Archive == nil {
				return "", fmt.Errorf("no session archive configured")
			}

			entries, err := deps.Archive.Search(ctx, strArg(args, "query"), intArg(args, "limit"))
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "Nothing in the archive matches that.", nil
			}

			var lines []string
			for _, e := range entries {
				lines = append(lines, fmt.Sprintf("Session %d: %s", e.Session, e.Summary))
			}
			return strings.Join(lines, "\n\n"), nil
		},
	}
}

func completeSetupStepTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "complete_setup_step",
			Description: "Mark a campaign setup wizard step as finished.",
			Params: []schema.Param{
				{Name: "step", Type: "integer", Description: "The step just completed, 1 through 4"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			step := intArg(args, "step")
			if step < 1 || step > 4 {
				return "", fmt.Errorf("setup step must be between 1 and 4")
			}

			current, err := deps.Store.WizardStage()
			if err != nil {
				return "", err
			}
			if step <= current {
				return fmt.Sprintf("Step %d was already complete.", step), nil
			}

			if err := deps.Store.SetWizardStage(step); err != nil {
				return "", err
			}
			if step == 4 {
				return "Setup complete. The campaign is ready to play.", nil
			}
			return fmt.Sprintf("Setup step %d complete.", step), nil
		},
	}
}

func submitCharacterSheetTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "submit_character_sheet",
			Description: "Store or update a character sheet as structured data.",
			Params: []schema.Param{
				{Name: "character", Type: "string", Description: "Character name"},
				{Name: "sheet", Type: "object", Description: "Sheet fields: class, level, stats, hp, and so on"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			sheet, ok := args["sheet"].(map[string]interface{})
			if !ok {
				return "", fmt.Errorf("sheet must be an object")
			}

			character := strArg(args, "character")
			if err := deps.Store.SaveSheet(character, env.UserID, sheet); err != nil {
				return "", err
			}
			return fmt.Sprintf("Character sheet for %s saved.", character), nil
		},
	}
}

func sendDMTool(deps Deps) Definition {
	return Definition{
		Schema: schema.Tool{
			Name:        "send_dm",
			Description: "Send a private message to a player, for secrets only they should know. Address them by character name or platform user id.",
			Params: []schema.Param{
				{Name: "user_id", Type: "string", Description: "Platform user id of the recipient", Default: ""},
				{Name: "character", Type: "string", Description: "Character whose player should receive the message", Default: ""},
				{Name: "message", Type: "string", Description: "The private message"},
			},
		},
		Handler: func(ctx context.Context, env Env, args map[string]interface{}) (string, error) {
			if deps.Notifier == nil {
				return "", fmt.Errorf("private messages are not available on this platform")
			}

			userID := strArg(args, "user_id")
			if userID == "" {
				character := strArg(args, "character")
				if character == "" {
					return "", fmt.Errorf("either user_id or character is required")
				}
				id, err := deps.Store.UserIDForCharacter(character)
				if err != nil {
					return "", err
				}
				if id == "" {
					return "", fmt.Errorf("no player found for character %q", character)
				}
				userID = id
			}

			if err := deps.Notifier.SendDirect(ctx, userID, strArg(args, "message")); err != nil {
				return "", fmt.Errorf("failed to send private message: %w", err)
			}
			return "Private message sent.", nil
		},
	}
}

func strArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]interface{}, name string) int {
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func floatArg(args map[string]interface{}, name string) float64 {
	switch v := args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
