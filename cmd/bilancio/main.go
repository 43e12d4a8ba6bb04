package main

import (
	"context"
	"os"

	"bilancio/internal/commands"
)

func main() {
	os.Exit(commands.Execute(context.Background()))
}
