package telegram

import (
	"context"
	"fmt"

	"github.com/lysyi3m/channel-comb/app/rotation"
)

// Publisher implements the rotator's transport contract for one route:
// channel items are copied by id from the source chat, feed items are sent as
// fresh text messages.
type Publisher struct {
	client       *Client
	sourceChatID int64
	targetChatID int64
}

var _ rotation.Transport = (*Publisher)(nil)

func NewPublisher(client *Client, sourceChatID, targetChatID int64) *Publisher {
	return &Publisher{
		client:       client,
		sourceChatID: sourceChatID,
		targetChatID: targetChatID,
	}
}

func (p *Publisher) Publish(ctx context.Context, item rotation.Item, cleanedText string) (int64, error) {
	if item.Origin == rotation.OriginFeed {
		text := cleanedText
		if item.Link != "" {
			text = text + "\n\n" + item.Link
		}
		return p.client.SendMessage(ctx, p.targetChatID, text)
	}

	// Media items get the cleaned text as a replacement caption; for bare
	// text items copyMessage carries the original body, so the caption is
	// left empty.
	caption := ""
	if item.Kind != rotation.ItemText {
		caption = cleanedText
	}

	msgID, err := p.client.CopyMessage(ctx, p.targetChatID, p.sourceChatID, item.ID, caption)
	if err != nil {
		return 0, fmt.Errorf("failed to copy message %d: %w", item.ID, err)
	}
	return msgID, nil
}
