// Package main provides the entry point for the stcache CLI.
package main

import (
	"github.com/colthorp/spacetraders-cache-go/internal/cli"
)

func main() {
	cli.Execute()
}
