package discord

type FileMessage struct {
	ChannelID   string
	Content     string
	Filename    string
	ContentType string
	FileBody    []byte
}

// Client posts run notifications to a text channel over the REST API.
type Client interface {
	SendChannelMessage(channelID, content string) error
	SendChannelMessageWithFile(msg FileMessage) error
}
