package main

import (
	"github.com/sirupsen/logrus"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		logrus.Fatalf("application error: %v", err)
	}
}
