package main

import (
	"fmt"
	"os"

	"storekeeper/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "storekeeper:", err)
		os.Exit(app.ExitCode(err))
	}
}
