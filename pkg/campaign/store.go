package campaign

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Store holds a campaign's structured state in SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Player is one registered participant of the campaign.
type Player struct {
	UserID        string    `json:"user_id"`
	Platform      string    `json:"platform"`
	CharacterName string    `json:"character_name"`
	IsFacilitator bool      `json:"is_facilitator"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// InventoryItem is one stack of items owned by a character.
type InventoryItem struct {
	Character string `json:"character"`
	Item      string `json:"item"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

// Quest tracks one objective's lifecycle.
type Quest struct {
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Details   string    `json:"details,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BufferEntry is one untagged channel message captured as ambient context.
type BufferEntry struct {
	Author    string
	Content   string
	CreatedAt time.Time
}

// Combatant is one row of the structured initiative table.
type Combatant struct {
	Name       string `json:"name"`
	Initiative int    `json:"initiative"`
	HP         int    `json:"hp"`
	MaxHP      int    `json:"max_hp"`
	Conditions string `json:"conditions,omitempty"`
	Hostile    bool   `json:"hostile"`
}

// QuestStatuses are the allowed quest lifecycle states.
var QuestStatuses = []string{"active", "completed", "failed", "abandoned"}

// OpenStore opens (creating if needed) the campaign database at path.
func OpenStore(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open campaign database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize campaign schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS players (
			user_id TEXT PRIMARY KEY,
			platform TEXT NOT NULL,
			character_name TEXT NOT NULL DEFAULT '',
			is_facilitator INTEGER NOT NULL DEFAULT 0,
			registered_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS character_sheets (
			character_name TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			sheet TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS inventory (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			character_name TEXT NOT NULL,
			item TEXT NOT NULL,
			quantity INTEGER NOT NULL DEFAULT 1,
			notes TEXT NOT NULL DEFAULT '',
			UNIQUE (character_name, item)
		);

		CREATE TABLE IF NOT EXISTS quests (
			title TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'active',
			details TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS context_buffer (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			author TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS combatants (
			name TEXT PRIMARY KEY,
			initiative INTEGER NOT NULL,
			hp INTEGER NOT NULL,
			max_hp INTEGER NOT NULL,
			conditions TEXT NOT NULL DEFAULT '',
			hostile INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- players ---

// RegisterPlayer creates or updates a player record.
func (s *Store) RegisterPlayer(userID, platform string, facilitator bool) error {
	_, err := s.db.Exec(`
		INSERT INTO players (user_id, platform, is_facilitator, registered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET platform = excluded.platform,
			is_facilitator = excluded.is_facilitator
	`, userID, platform, boolToInt(facilitator), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to register player: %w", err)
	}
	return nil
}

// ClaimCharacter links a player to the character they play. The player record
// is created on the fly when missing.
func (s *Store) ClaimCharacter(userID, platform, characterName string) error {
	if strings.TrimSpace(characterName) == "" {
		return fmt.Errorf("character name is required")
	}

	_, err := s.db.Exec(`
		INSERT INTO players (user_id, platform, character_name, registered_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET character_name = excluded.character_name
	`, userID, platform, characterName, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to claim character: %w", err)
	}

	s.logger.Info().Str("user", userID).Str("character", characterName).Msg("Character claimed")
	return nil
}

// CharacterFor returns the character name a user plays, or "" when none.
func (s *Store) CharacterFor(userID string) (string, error) {
	var name string
	err := s.db.QueryRow("SELECT character_name FROM players WHERE user_id = ?", userID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up character: %w", err)
	}
	return name, nil
}

// UserIDForCharacter finds the player behind a character, trying an exact
// name match before a partial one. Returns "" when nobody plays a matching
// character.
func (s *Store) UserIDForCharacter(characterName string) (string, error) {
	var userID string
	err := s.db.QueryRow(
		"SELECT user_id FROM players WHERE character_name = ?", characterName,
	).Scan(&userID)
	if err == nil {
		return userID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to look up player: %w", err)
	}

	err = s.db.QueryRow(
		"SELECT user_id FROM players WHERE character_name != '' AND character_name LIKE ? ORDER BY registered_at LIMIT 1",
		"%"+characterName+"%",
	).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up player: %w", err)
	}
	return userID, nil
}

// Roster lists all registered players.
func (s *Store) Roster() ([]Player, error) {
	rows, err := s.db.Query(`
		SELECT user_id, platform, character_name, is_facilitator, registered_at
		FROM players ORDER BY registered_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		var p Player
		var facilitator int
		var registered int64
		if err := rows.Scan(&p.UserID, &p.Platform, &p.CharacterName, &facilitator, &registered); err != nil {
			return nil, err
		}
		p.IsFacilitator = facilitator != 0
		p.RegisteredAt = time.Unix(registered, 0)
		players = append(players, p)
	}
	return players, rows.Err()
}

// --- character sheets ---

// SaveSheet stores a character sheet as a JSON document. Empty fields are not
// preserved; zero-valued stats and false flags are.
func (s *Store) SaveSheet(characterName, ownerID string, sheet map[string]interface{}) error {
	if strings.TrimSpace(characterName) == "" {
		return fmt.Errorf("character name is required")
	}

	data, err := json.Marshal(pruneSheet(sheet))
	if err != nil {
		return fmt.Errorf("failed to marshal character sheet: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO character_sheets (character_name, owner_id, sheet, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(character_name) DO UPDATE SET owner_id = excluded.owner_id,
			sheet = excluded.sheet, updated_at = excluded.updated_at
	`, characterName, ownerID, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save character sheet: %w", err)
	}
	return nil
}

// Sheet returns the stored sheet for a character.
func (s *Store) Sheet(characterName string) (map[string]interface{}, error) {
	var data string
	err := s.db.QueryRow("SELECT sheet FROM character_sheets WHERE character_name = ?", characterName).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no character sheet for %q", characterName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load character sheet: %w", err)
	}

	var sheet map[string]interface{}
	if err := json.Unmarshal([]byte(data), &sheet); err != nil {
		return nil, fmt.Errorf("failed to parse character sheet: %w", err)
	}
	return sheet, nil
}

// SheetNames lists characters that have a stored sheet.
func (s *Store) SheetNames() ([]string, error) {
	rows, err := s.db.Query("SELECT character_name FROM character_sheets ORDER BY character_name")
	if err != nil {
		return nil, fmt.Errorf("failed to list character sheets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func pruneSheet(value map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(value))
	for k, v := range value {
		switch typed := v.(type) {
		case nil:
			continue
		case string:
			if typed == "" {
				continue
			}
		case []interface{}:
			if len(typed) == 0 {
				continue
			}
		case map[string]interface{}:
			if len(typed) == 0 {
				continue
			}
			v = pruneSheet(typed)
		}
		out[k] = v
	}
	return out
}

// --- inventory ---

// AdjustItem adds delta (which may be negative) to a character's item stack.
// Unknown characters are auto-registered as NPC owners so loot handed to a
// named NPC is still tracked. Stacks never go below zero; a zero stack is
// removed.
func (s *Store) AdjustItem(characterName, item string, delta int, notes string) (int, error) {
	if strings.TrimSpace(characterName) == "" || strings.TrimSpace(item) == "" {
		return 0, fmt.Errorf("character and item are required")
	}

	if err := s.ensureOwner(characterName); err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin inventory update: %w", err)
	}
	defer tx.Rollback()

	var current int
	err = tx.QueryRow(
		"SELECT quantity FROM inventory WHERE character_name = ? AND item = ?",
		characterName, item,
	).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read inventory: %w", err)
	}

	next := current + delta
	if next < 0 {
		next = 0
	}

	if next == 0 {
		_, err = tx.Exec("DELETE FROM inventory WHERE character_name = ? AND item = ?", characterName, item)
	} else {
		_, err = tx.Exec(`
			INSERT INTO inventory (character_name, item, quantity, notes)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(character_name, item) DO UPDATE SET quantity = excluded.quantity,
				notes = CASE WHEN excluded.notes != '' THEN excluded.notes ELSE inventory.notes END
		`, characterName, item, next, notes)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update inventory: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit inventory update: %w", err)
	}
	return next, nil
}

// Inventory lists a character's items.
func (s *Store) Inventory(characterName string) ([]InventoryItem, error) {
	rows, err := s.db.Query(`
		SELECT character_name, item, quantity, notes
		FROM inventory WHERE character_name = ? ORDER BY item
	`, characterName)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		var it InventoryItem
		if err := rows.Scan(&it.Character, &it.Item, &it.Quantity, &it.Notes); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ensureOwner registers a synthetic NPC player record when the character has
// no owning player yet.
func (s *Store) ensureOwner(characterName string) error {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM players WHERE character_name = ?", characterName).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check character owner: %w", err)
	}
	if count > 0 {
		return nil
	}

	npcID := "npc:" + uuid.NewString()
	_, err = s.db.Exec(`
		INSERT INTO players (user_id, platform, character_name, registered_at)
		VALUES (?, 'npc', ?, ?)
	`, npcID, characterName, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to register NPC owner: %w", err)
	}

	s.logger.Debug().Str("character", characterName).Str("owner", npcID).Msg("Auto-registered NPC owner")
	return nil
}

// --- quests ---

// UpsertQuest creates or updates a quest. Unknown statuses are rejected.
func (s *Store) UpsertQuest(title, status, details string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("quest title is required")
	}
	if status == "" {
		status = "active"
	}
	if !validQuestStatus(status) {
		return fmt.Errorf("invalid quest status %q: expected one of %s", status, strings.Join(QuestStatuses, ", "))
	}

	_, err := s.db.Exec(`
		INSERT INTO quests (title, status, details, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(title) DO UPDATE SET status = excluded.status,
			details = CASE WHEN excluded.details != '' THEN excluded.details ELSE quests.details END,
			updated_at = excluded.updated_at
	`, title, status, details, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert quest: %w", err)
	}
	return nil
}

// Quests lists quests, optionally filtered by status ("" means all).
func (s *Store) Quests(status string) ([]Quest, error) {
	query := "SELECT title, status, details, updated_at FROM quests"
	args := []interface{}{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY updated_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	defer rows.Close()

	var quests []Quest
	for rows.Next() {
		var q Quest
		var updated int64
		if err := rows.Scan(&q.Title, &q.Status, &q.Details, &updated); err != nil {
			return nil, err
		}
		q.UpdatedAt = time.Unix(updated, 0)
		quests = append(quests, q)
	}
	return quests, rows.Err()
}

func validQuestStatus(status string) bool {
	for _, s := range QuestStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// --- context buffer ---

// AppendBuffer records an untagged channel message as ambient context.
func (s *Store) AppendBuffer(author, content string) error {
	_, err := s.db.Exec(
		"INSERT INTO context_buffer (author, content, created_at) VALUES (?, ?, ?)",
		author, content, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append context buffer: %w", err)
	}
	return nil
}

// DrainBuffer returns all buffered entries in insertion order and clears the
// buffer.
func (s *Store) DrainBuffer() ([]BufferEntry, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin buffer drain: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query("SELECT author, content, created_at FROM context_buffer ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to read context buffer: %w", err)
	}

	var entries []BufferEntry
	for rows.Next() {
		var e BufferEntry
		var created int64
		if err := rows.Scan(&e.Author, &e.Content, &created); err != nil {
			rows.Close()
			return nil, err
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.Exec("DELETE FROM context_buffer"); err != nil {
		return nil, fmt.Errorf("failed to clear context buffer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit buffer drain: %w", err)
	}
	return entries, nil
}

// BufferCount reports the number of pending buffer entries.
func (s *Store) BufferCount() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM context_buffer").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count context buffer: %w", err)
	}
	return count, nil
}

// PurgeStaleBuffer drops buffered entries older than maxAge and reports how
// many were removed.
func (s *Store) PurgeStaleBuffer(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()
	result, err := s.db.Exec("DELETE FROM context_buffer WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge context buffer: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// --- setup wizard ---

const wizardStageKey = "wizard_stage"

// WizardStage reports the current setup wizard step, 0 when never set.
func (s *Store) WizardStage() (int, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", wizardStageKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read wizard stage: %w", err)
	}

	var stage int
	if _, err := fmt.Sscanf(value, "%d", &stage); err != nil {
		return 0, nil
	}
	return stage, nil
}

// SetWizardStage records progress through the setup wizard.
func (s *Store) SetWizardStage(stage int) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, wizardStageKey, fmt.Sprintf("%d", stage))
	if err != nil {
		return fmt.Errorf("failed to set wizard stage: %w", err)
	}
	return nil
}

// --- combat ---

// StartCombat replaces the combat table with the given combatants.
func (s *Store) StartCombat(combatants []Combatant) error {
	if len(combatants) == 0 {
		return fmt.Errorf("at least one combatant is required")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin combat setup: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM combatants"); err != nil {
		return fmt.Errorf("failed to clear combat table: %w", err)
	}

	for _, c := range combatants {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("combatant name is required")
		}
		if c.MaxHP == 0 {
			c.MaxHP = c.HP
		}
		_, err := tx.Exec(`
			INSERT INTO combatants (name, initiative, hp, max_hp, conditions, hostile)
			VALUES (?, ?, ?, ?, ?, ?)
		`, c.Name, c.Initiative, c.HP, c.MaxHP, c.Conditions, boolToInt(c.Hostile))
		if err != nil {
			return fmt.Errorf("failed to add combatant %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit combat setup: %w", err)
	}

	s.logger.Info().Int("combatants", len(combatants)).Msg("Combat started")
	return nil
}

// UpdateCombatant applies an HP delta and optional condition change to one
// combatant. HP is clamped to [0, max_hp].
func (s *Store) UpdateCombatant(name string, hpDelta int, conditions *string) (Combatant, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Combatant{}, fmt.Errorf("failed to begin combat update: %w", err)
	}
	defer tx.Rollback()

	var c Combatant
	var hostile int
	err = tx.QueryRow(`
		SELECT name, initiative, hp, max_hp, conditions, hostile
		FROM combatants WHERE name = ?
	`, name).Scan(&c.Name, &c.Initiative, &c.HP, &c.MaxHP, &c.Conditions, &hostile)
	if err == sql.ErrNoRows {
		return Combatant{}, fmt.Errorf("no combatant named %q", name)
	}
	if err != nil {
		return Combatant{}, fmt.Errorf("failed to read combatant: %w", err)
	}
	c.Hostile = hostile != 0

	c.HP += hpDelta
	if c.HP < 0 {
		c.HP = 0
	}
	if c.HP > c.MaxHP {
		c.HP = c.MaxHP
	}
	if conditions != nil {
		c.Conditions = *conditions
	}

	_, err = tx.Exec(
		"UPDATE combatants SET hp = ?, conditions = ? WHERE name = ?",
		c.HP, c.Conditions, name,
	)
	if err != nil {
		return Combatant{}, fmt.Errorf("failed to update combatant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Combatant{}, fmt.Errorf("failed to commit combat update: %w", err)
	}
	return c, nil
}

// Combatants returns the combat table sorted by initiative, highest first.
func (s *Store) Combatants() ([]Combatant, error) {
	rows, err := s.db.Query("SELECT name, initiative, hp, max_hp, conditions, hostile FROM combatants")
	if err != nil {
		return nil, fmt.Errorf("failed to list combatants: %w", err)
	}
	defer rows.Close()

	var combatants []Combatant
	for rows.Next() {
		var c Combatant
		var hostile int
		if err := rows.Scan(&c.Name, &c.Initiative, &c.HP, &c.MaxHP, &c.Conditions, &hostile); err != nil {
			return nil, err
		}
		c.Hostile = hostile != 0
		combatants = append(combatants, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(combatants, func(i, j int) bool {
		if combatants[i].Initiative != combatants[j].Initiative {
			return combatants[i].Initiative > combatants[j].Initiative
		}
		return combatants[i].Name < combatants[j].Name
	})
	return combatants, nil
}

// EndCombat clears the combat table.
func (s *Store) EndCombat() error {
	if _, err := s.db.Exec("DELETE FROM combatants"); err != nil {
		return fmt.Errorf("failed to end combat: %w", err)
	}
	return nil
}

// RenderCombatTable formats the combat state as a markdown table for the
// facilitator's context.
func RenderCombatTable(combatants []Combatant) string {
	if len(combatants) == 0 {
		return "No combat in progress."
	}

	var b strings.Builder
	b.WriteString("| Name | Init | HP | Conditions | Side |\n")
	b.WriteString("|------|------|----|------------|------|\n")
	for _, c := range combatants {
		side := "ally"
		if c.Hostile {
			side = "enemy"
		}
		conditions := c.Conditions
		if conditions == "" {
			conditions = "-"
		}
		fmt.Fprintf(&b, "| %s | %d | %d/%d | %s | %s |\n",
			c.Name, c.Initiative, c.HP, c.MaxHP, conditions, side)
	}
	return strings.TrimRight(b.String(), "\n")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
