package main

import (
	"context"
	"os"

	"github.com/gofiber/fiber/v2/log"
)

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
