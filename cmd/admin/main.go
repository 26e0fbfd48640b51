package main

import (
	"fmt"
	"os"

	"github.com/ariefcatur/go-guesthouse-orders/internal/cli"
	"github.com/ariefcatur/go-guesthouse-orders/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := cli.NewRootCommand(config.LoadClient()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
