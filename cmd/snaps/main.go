package main

import (
	"log"

	"github.com/MrSnakeDoc/snaps/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		log.Fatalf("❌ snaps failed to start: %v", err)
	}
	if err := a.Run(); err != nil {
		log.Fatalf("❌ snaps exited with error: %v", err)
	}
}
