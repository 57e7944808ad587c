package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/halden/meeple/pkg/campaign"
)

const helpText = `Player commands:
!iam <character> - claim the character you play
!name [race] - generate NPC names
!startsession - begin a new numbered session
!wrapup - end the session and archive a recap
!forget - remove the facilitator's last reply
!debug <message> - talk to the facilitator with tool traces
!help - this message

Admin commands:
!admin bind <campaign> - bind this chat to a campaign
!admin allow <user_id> - allow a user
!admin deny <user_id> - block a user
!admin list - show bindings and access policy`

type commandFunc func(msg *tgbotapi.Message, args []string) (string, error)

// Commands dispatches the ! command set.
type Commands struct {
	bot      *Bot
	logger   zerolog.Logger
	handlers map[string]commandFunc
}

func newCommands(b *Bot) *Commands {
	c := &Commands{
		bot:      b,
		logger:   b.logger.With().Str("module", "commands").Logger(),
		handlers: make(map[string]commandFunc),
	}

	c.handlers["iam"] = c.iam
	c.handlers["name"] = c.name
	c.handlers["startsession"] = c.startSession
	c.handlers["wrapup"] = c.wrapup
	c.handlers["forget"] = c.forget
	c.handlers["admin"] = c.admin
	c.handlers["help"] = c.help
	return c
}

func (c *Commands) dispatch(msg *tgbotapi.Message, text string) error {
	fields := strings.Fields(strings.TrimPrefix(text, "!"))
	if len(fields) == 0 {
		return nil
	}
	command := strings.ToLower(fields[0])
	args := fields[1:]

	// !debug relays the rest of the line as a normal message with tool
	// traces turned on.
	if command == "debug" {
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "!"), fields[0]))
		if rest == "" {
			return c.reply(msg, "Usage: !debug <message>")
		}
		return c.bot.relay(msg, rest, true)
	}

	handler, ok := c.handlers[command]
	if !ok {
		// Not every ! is for us; stay quiet rather than nagging the chat.
		c.logger.Debug().Str("command", command).Msg("Unknown command ignored")
		return nil
	}

	c.logger.Debug().
		Str("command", command).
		Int64("user_id", msg.From.ID).
		Msg("Command received")

	response, err := handler(msg, args)
	if err != nil {
		return c.reply(msg, fmt.Sprintf("Error: %v", err))
	}
	if response == "" {
		return nil
	}
	return c.reply(msg, response)
}

func (c *Commands) reply(msg *tgbotapi.Message, text string) error {
	return c.bot.Send(msg.Chat.ID, text, msg.MessageID)
}

func (c *Commands) campaignFor(msg *tgbotapi.Message) (string, error) {
	name, ok := c.bot.channels.Lookup("telegram", strconv.FormatInt(msg.Chat.ID, 10))
	if !ok {
		return "", fmt.Errorf("this chat is not bound to a campaign")
	}
	return name, nil
}

func (c *Commands) iam(msg *tgbotapi.Message, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: !iam <character name>", nil
	}
	name, err := c.campaignFor(msg)
	if err != nil {
		return "", err
	}

	session, err := c.bot.engine.SessionFor(context.Background(), name)
	if err != nil {
		return "", err
	}

	character := strings.Join(args, " ")
	userID := strconv.FormatInt(msg.From.ID, 10)
	if err := session.Store.ClaimCharacter(userID, "telegram", character); err != nil {
		return "", err
	}
	return fmt.Sprintf("Noted. %s is playing %s.", displayName(msg.From), character), nil
}

func (c *Commands) name(msg *tgbotapi.Message, args []string) (string, error) {
	race := "human"
	if len(args) > 0 {
		race = strings.ToLower(args[0])
	}
	return c.bot.names.Generate(race, 3), nil
}

func (c *Commands) startSession(msg *tgbotapi.Message, _ []string) (string, error) {
	name, err := c.campaignFor(msg)
	if err != nil {
		return "", err
	}
	session, err := c.bot.engine.SessionFor(context.Background(), name)
	if err != nil {
		return "", err
	}

	n, err := session.Journal.StartSession()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Session %d has begun.", n), nil
}

func (c *Commands) wrapup(msg *tgbotapi.Message, _ []string) (string, error) {
	name, err := c.campaignFor(msg)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	session, err := c.bot.engine.SessionFor(ctx, name)
	if err != nil {
		return "", err
	}

	n, summary, err := session.Journal.CompactSession(ctx, session)
	if err != nil {
		return "", err
	}
	if err := session.Archive.Index(ctx, n, summary); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to index session recap")
	}
	return fmt.Sprintf("Session %d wrapped up.\n\nRecap: %s", n, summary), nil
}

func (c *Commands) forget(msg *tgbotapi.Message, _ []string) (string, error) {
	preview, err := c.bot.engine.Forget("telegram", strconv.FormatInt(msg.Chat.ID, 10))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed the last exchange. It began: %s", preview), nil
}

func (c *Commands) admin(msg *tgbotapi.Message, args []string) (string, error) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	if !c.bot.access.IsAdmin(userID) {
		return "", fmt.Errorf("admin commands require admin access")
	}
	if len(args) == 0 {
		return "Usage: !admin bind <campaign> | allow <user_id> | deny <user_id> | list", nil
	}

	switch strings.ToLower(args[0]) {
	case "bind":
		if len(args) < 2 {
			return "Usage: !admin bind <campaign>", nil
		}
		name := args[1]
		if err := campaign.ValidateName(name); err != nil {
			return "", err
		}
		chatID := strconv.FormatInt(msg.Chat.ID, 10)
		if err := c.bot.channels.Bind("telegram", chatID, name); err != nil {
			return "", err
		}
		return fmt.Sprintf("This chat now plays in campaign %q.", name), nil

	case "allow":
		if len(args) < 2 {
			return "Usage: !admin allow <user_id>", nil
		}
		if err := c.bot.access.AllowUser(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("User %s allowed.", args[1]), nil

	case "deny":
		if len(args) < 2 {
			return "Usage: !admin deny <user_id>", nil
		}
		if err := c.bot.access.DenyUser(args[1]); err != nil {
			return "", err
		}
		return fmt.Sprintf("User %s blocked.", args[1]), nil

	case "list":
		return c.adminList(), nil
	}
	return "", fmt.Errorf("unknown admin subcommand %q", args[0])
}

func (c *Commands) adminList() string {
	var b strings.Builder

	b.WriteString("Channel bindings:\n")
	bindings := c.bot.channels.Bindings()
	if len(bindings) == 0 {
		b.WriteString("  (none)\n")
	}
	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  %s -> %s\n", k, bindings[k])
	}

	policy := c.bot.access.Snapshot()
	fmt.Fprintf(&b, "Allowed users: %s\n", listOrAll(policy.AllowedUsers))
	fmt.Fprintf(&b, "Blocked users: %s\n", listOrNone(policy.BlockedUsers))
	fmt.Fprintf(&b, "Admins: %s", listOrNone(policy.Admins))
	return b.String()
}

func listOrAll(items []string) string {
	if len(items) == 0 {
		return "(everyone)"
	}
	return strings.Join(items, ", ")
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func (c *Commands) help(*tgbotapi.Message, []string) (string, error) {
	return helpText, nil
}
