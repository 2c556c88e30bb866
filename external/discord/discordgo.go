package discord

import (
	"bytes"
	"fmt"

	"github.com/bwmarrin/discordgo"

	discordpkg "github.com/foxseedlab/rdhours/internal/discord"
)

// Discord rejects message content above this many characters.
const maxMessageLength = 2000

type Client struct {
	session *discordgo.Session
}

func NewClient(token string) (discordpkg.Client, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &Client{session: s}, nil
}

func (c *Client) SendChannelMessage(channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, truncate(content))
	return err
}

func (c *Client) SendChannelMessageWithFile(msg discordpkg.FileMessage) error {
	contentType := msg.ContentType
	if contentType == "" {
		contentType = "text/plain"
	}
	_, err := c.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content: truncate(msg.Content),
		Files: []*discordgo.File{
			{Name: msg.Filename, ContentType: contentType, Reader: bytes.NewReader(msg.FileBody)},
		},
	})
	return err
}

func truncate(content string) string {
	r := []rune(content)
	if len(r) <= maxMessageLength {
		return content
	}
	return string(r[:maxMessageLength-1]) + "…"
}

// DisabledClient is provided when no bot token is configured.
type DisabledClient struct{}

func (DisabledClient) SendChannelMessage(string, string) error { return nil }

func (DisabledClient) SendChannelMessageWithFile(discordpkg.FileMessage) error { return nil }
