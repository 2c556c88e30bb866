package discord

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	discordpkg "github.com/foxseedlab/rdhours/internal/discord"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	s, err := discordgo.New("Bot test-token")
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	s.Client = &http.Client{Transport: rt}
	return &Client{session: s}
}

func okMessage() *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader(`{"id":"msg-1","channel_id":"chan-1","content":""}`)),
		Header:     make(http.Header),
	}
}

func TestSendChannelMessage_PostsToChannel(t *testing.T) {
	var gotPath, gotAuth string
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		gotPath = req.URL.Path
		gotAuth = req.Header.Get("Authorization")
		return okMessage(), nil
	})

	if err := c.SendChannelMessage("chan-1", "run finished"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(gotPath, "/channels/chan-1/messages") {
		t.Fatalf("unexpected request path: %s", gotPath)
	}
	if gotAuth != "Bot test-token" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
}

func TestSendChannelMessageWithFile_AttachesFile(t *testing.T) {
	var gotFilename, gotBody string
	c := newTestClient(t, func(req *http.Request) (*http.Response, error) {
		mediaType, params, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
		if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
			t.Errorf("unexpected content type %q: %v", req.Header.Get("Content-Type"), err)
			return okMessage(), nil
		}
		reader := multipart.NewReader(req.Body, params["boundary"])
		for {
			part, err := reader.NextPart()
			if err != nil {
				break
			}
			if part.FileName() != "" {
				gotFilename = part.FileName()
				b, _ := io.ReadAll(part)
				gotBody = string(b)
			}
		}
		return okMessage(), nil
	})

	err := c.SendChannelMessageWithFile(discordpkg.FileMessage{
		ChannelID: "chan-1",
		Content:   "daily totals",
		Filename:  "totals.csv",
		FileBody:  []byte("date,hours\n2025-06-10,11.00\n"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotFilename != "totals.csv" || !strings.Contains(gotBody, "2025-06-10,11.00") {
		t.Fatalf("unexpected attachment %q: %q", gotFilename, gotBody)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("あ", maxMessageLength+10)
	got := truncate(long)
	if utf8.RuneCountInString(got) != maxMessageLength {
		t.Fatalf("truncated length = %d, want %d", utf8.RuneCountInString(got), maxMessageLength)
	}
	if truncate("short") != "short" {
		t.Fatal("short content must be unchanged")
	}
}
