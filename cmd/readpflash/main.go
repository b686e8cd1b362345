package main

import (
	"context"
	"os"

	"github.com/tinyrange/readpflash/internal/xtask"
)

func main() {
	os.Exit(xtask.New().Main(context.Background(), os.Args[1:]))
}
