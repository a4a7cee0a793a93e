package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/lysyi3m/channel-comb/app/database"
	"github.com/lysyi3m/channel-comb/app/rotation"
)

// Rotators exposes the per-route rotators to the command surface.
type Rotators interface {
	Get(routeName string) (*rotation.Rotator, bool)
	Names() []string
}

// CommandHandler answers operator commands sent to the bot in a private
// chat: /rotate forces one tick, /status reports per-route state.
type CommandHandler struct {
	client     *Client
	rotators   Rotators
	itemRepo   database.ItemRepository
	ledgerRepo database.LedgerRepository
}

func NewCommandHandler(client *Client, rotators Rotators, itemRepo database.ItemRepository, ledgerRepo database.LedgerRepository) *CommandHandler {
	return &CommandHandler{
		client:     client,
		rotators:   rotators,
		itemRepo:   itemRepo,
		ledgerRepo: ledgerRepo,
	}
}

func (h *CommandHandler) Handle(ctx context.Context, msg *Message) {
	if msg.Chat.Type != "private" {
		return
	}

	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return
	}

	// Commands may arrive as /rotate@botname
	command := strings.SplitN(fields[0], "@", 2)[0]
	args := fields[1:]

	var reply string
	switch command {
	case "/rotate":
		reply = h.handleRotate(ctx, args)
	case "/status":
		reply = h.handleStatus(args)
	case "/start":
		reply = "Ready. Commands: /rotate <route>, /status"
	default:
		return
	}

	if _, err := h.client.SendMessage(ctx, msg.Chat.ID, reply); err != nil {
		slog.Warn("Failed to send command reply", "chat_id", msg.Chat.ID, "error", err)
	}
}

// handleRotate runs one forced tick. The gate is bypassed; the ledger and
// quota still apply.
func (h *CommandHandler) handleRotate(ctx context.Context, args []string) string {
	routeName, err := h.resolveRoute(args)
	if err != nil {
		return err.Error()
	}

	rotator, ok := h.rotators.Get(routeName)
	if !ok {
		return fmt.Sprintf("Unknown route: %s", routeName)
	}

	report, err := rotator.RunTick(ctx, true)
	if err != nil {
		return fmt.Sprintf("Rotation failed: %v", err)
	}

	switch report.Skipped {
	case rotation.SkipNothingAvailable:
		return fmt.Sprintf("Route %s: no unused content available.", routeName)
	case rotation.SkipSourceUnavailable:
		return fmt.Sprintf("Route %s: source unavailable, try again later.", routeName)
	case rotation.SkipHalted:
		return fmt.Sprintf("Route %s: rotator is halted, check the logs.", routeName)
	}

	return fmt.Sprintf("Route %s: published %d (ids %v), filtered %d, failed %d.",
		routeName, report.Published, report.PublishedIDs, report.Filtered, report.Failed)
}

func (h *CommandHandler) handleStatus(args []string) string {
	names := h.rotators.Names()
	if len(names) == 0 {
		return "No routes configured."
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		poolCount, err := h.itemRepo.GetItemCount(name)
		if err != nil {
			slog.Error("Failed to count pool items", "route", name, "error", err)
			continue
		}

		stats, err := h.ledgerRepo.GetStats(name)
		if err != nil {
			slog.Error("Failed to get ledger stats", "route", name, "error", err)
			continue
		}

		decided := stats.Published + stats.SkippedFiltered + stats.SkippedEmpty + stats.FailedPermanent
		fmt.Fprintf(&b, "%s: pool %d, remaining %d, published %d, filtered %d, failed %d\n",
			name, poolCount, poolCount-decided, stats.Published,
			stats.SkippedFiltered+stats.SkippedEmpty, stats.FailedPermanent)
	}

	if b.Len() == 0 {
		return "Status unavailable."
	}
	return strings.TrimRight(b.String(), "\n")
}

// resolveRoute picks the route argument, defaulting when only one exists.
func (h *CommandHandler) resolveRoute(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	names := h.rotators.Names()
	if len(names) == 1 {
		return names[0], nil
	}
	return "", fmt.Errorf("specify a route: /rotate <%s>", strings.Join(names, "|"))
}
