package main

import (
	"fmt"
	"os"

	"github.com/coachline/coachline-backend/internal/app"
	"github.com/coachline/coachline-backend/internal/utils"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	port := utils.GetEnv("PORT", "8080", a.Log)
	addr := ":" + port
	a.Log.Info("Starting server", "addr", addr)
	if err := a.Run(addr); err != nil {
		a.Log.Fatal("Server exited", "error", err)
	}
}
