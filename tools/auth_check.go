package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/config"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/slack"
)

func main() {
	_ = godotenv.Load()

	token := os.Getenv("SLACK_BOT_TOKEN")
	if token == "" {
		log.Fatal("Please set the SLACK_BOT_TOKEN environment variable")
	}

	client := slack.NewClient(&config.SlackConfig{
		BotToken:     token,
		BaseURL:      "https://slack.com/api",
		Timeout:      30 * time.Second,
		HistoryLimit: 10,
	})

	ctx := context.Background()

	identity, err := client.AuthTest(ctx)
	if err != nil {
		log.Fatalf("Auth check failed: %v", err)
	}

	fmt.Printf("Authenticated as: %s (%s)\n", identity.User, identity.UserID)
	fmt.Printf("Team: %s (%s)\n", identity.Team, identity.TeamID)

	channels, err := client.ListChannels(ctx)
	if err != nil {
		log.Fatalf("Unable to list channels: %v", err)
	}

	fmt.Printf("\nVisible channels: %d\n", len(channels))
	for _, ch := range channels {
		member := " "
		if ch.IsMember {
			member = "*"
		}
		fmt.Printf("  %s %s  #%s\n", member, ch.ID, ch.Name)
	}
	fmt.Println("\nChannels marked * are ones the bot has joined and can poll.")
}
