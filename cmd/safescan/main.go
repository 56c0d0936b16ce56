// Command safescan analyzes product pages from the terminal, either in
// process or against a running API server, and manages the database schema.
//
// Release builds set the version with
//
//	-ldflags "-X github.com/turtacn/SafeScan/internal/interfaces/cli.Version=v1.2.0"
package main

import (
	"context"
	"os"

	"github.com/turtacn/SafeScan/internal/interfaces/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
