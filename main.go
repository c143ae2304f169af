package main

import (
	"log"

	"github.com/voluntr/engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatalf("voluntr: %v", err)
	}
}
