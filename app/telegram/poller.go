package telegram

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/channel-comb/app/database"
	"github.com/lysyi3m/channel-comb/app/rotation"
)

// Poller long-polls getUpdates, filling the rotation pool from routed source
// channels and dispatching operator commands.
type Poller struct {
	client      *Client
	configCache *rotation.ConfigCache
	itemRepo    database.ItemRepository
	commands    *CommandHandler
	timeout     int
	offset      int64
}

func NewPoller(client *Client, configCache *rotation.ConfigCache, itemRepo database.ItemRepository, commands *CommandHandler, timeout int) *Poller {
	if timeout <= 0 {
		timeout = 30
	}
	return &Poller{
		client:      client,
		configCache: configCache,
		itemRepo:    itemRepo,
		commands:    commands,
		timeout:     timeout,
	}
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("Telegram poller started", "timeout", p.timeout)

	for {
		if ctx.Err() != nil {
			slog.Info("Telegram poller stopped")
			return
		}

		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("Telegram poller stopped")
				return
			}
			slog.Warn("Failed to get updates, backing off", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= p.offset {
				p.offset = update.UpdateID + 1
			}
			p.handleUpdate(ctx, update)
		}
	}
}

func (p *Poller) handleUpdate(ctx context.Context, update Update) {
	switch {
	case update.ChannelPost != nil:
		p.ingestChannelPost(update.ChannelPost)
	case update.Message != nil && strings.HasPrefix(update.Message.Text, "/"):
		p.commands.Handle(ctx, update.Message)
	}
}

// ingestChannelPost stores a source channel post into the rotation pool of
// the route listening on that chat.
func (p *Poller) ingestChannelPost(msg *Message) {
	routeConfig := p.configCache.GetConfigBySourceChat(msg.Chat.ID)
	if routeConfig == nil {
		slog.Debug("Channel post from unrouted chat ignored", "chat_id", msg.Chat.ID)
		return
	}

	item := database.Item{
		RouteName: routeConfig.Name,
		ItemID:    msg.MessageID,
		Kind:      string(itemKind(msg)),
		Text:      msg.Text,
		Caption:   msg.Caption,
		MediaRef:  mediaRef(msg),
		PostedAt:  time.Unix(msg.Date, 0).UTC(),
	}

	if err := p.itemRepo.StoreItem(item); err != nil {
		slog.Error("Failed to store channel post", "route", routeConfig.Name, "item_id", msg.MessageID, "error", err)
		return
	}

	slog.Debug("Channel post pooled", "route", routeConfig.Name, "item_id", msg.MessageID, "kind", item.Kind)
}

func itemKind(msg *Message) rotation.ItemKind {
	switch {
	case len(msg.Photo) > 0:
		return rotation.ItemPhoto
	case msg.Document != nil:
		return rotation.ItemDocument
	case msg.Video != nil:
		return rotation.ItemVideo
	default:
		return rotation.ItemText
	}
}

// mediaRef returns the transport handle of the message's media, preferring
// the largest photo size.
func mediaRef(msg *Message) string {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, size := range msg.Photo[1:] {
			if size.Width*size.Height > best.Width*best.Height {
				best = size
			}
		}
		return best.FileID
	case msg.Document != nil:
		return msg.Document.FileID
	case msg.Video != nil:
		return msg.Video.FileID
	default:
		return ""
	}
}
