package main

import (
	"github.com/nak1ro/micro-scribe-sub003/cmd/scribe/cmd"
)

func main() {
	cmd.Execute()
}
