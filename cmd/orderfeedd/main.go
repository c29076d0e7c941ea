package main

import (
	"order-feed-sync/internal/cli"
)

func main() {
	cli.Execute()
}
