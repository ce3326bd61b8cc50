// Command chat is a terminal client for the group discussion: it registers
// the device, prints the live message feed, and posts lines read from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/quentinzango/evenement/internal/client"
	"github.com/quentinzango/evenement/internal/identity"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "server base URL")
	name := flag.String("name", "", "display name (required)")
	statePath := flag.String("state", defaultStatePath(), "path to the device identity file")
	flag.Parse()

	if strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -name <display name> [-server URL]")
		os.Exit(1)
	}

	store := identity.NewStore(*statePath)
	c := client.New(*serverURL, store)

	ctx := context.Background()
	profile, err := c.RegisterDevice(ctx, *name, nil)
	if err != nil {
		slog.Error("registration failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("registered as %s (%s)\n", profile.DisplayName, profile.ID)

	view := client.NewMessageView(c, feedURL(*serverURL))
	view.OnChange = func() {
		entries := view.Entries()
		if len(entries) == 0 {
			return
		}
		last := entries[len(entries)-1]
		marker := ""
		if last.Provisional {
			marker = " (sending)"
		}
		fmt.Printf("[%s] %s: %s%s\n", last.Message.CreatedAt.Local().Format("15:04"), last.Message.AuthorName, last.Message.Text, marker)
	}

	if err := view.Open(ctx); err != nil {
		slog.Error("opening message view failed", "error", err)
		os.Exit(1)
	}
	defer view.Close()

	for _, e := range view.Entries() {
		fmt.Printf("[%s] %s: %s\n", e.Message.CreatedAt.Local().Format("15:04"), e.Message.AuthorName, e.Message.Text)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := view.PostOptimistic(ctx, text); err != nil {
			// Leave the typed text visible for retry; never clear on failure.
			fmt.Fprintf(os.Stderr, "send failed (%v), press enter to retry: %s\n", err, text)
		}
	}
}

func feedURL(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "ws://localhost:8080/feed"
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/feed"
	return u.String()
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".evenement/device.json"
	}
	return filepath.Join(home, ".evenement", "device.json")
}
