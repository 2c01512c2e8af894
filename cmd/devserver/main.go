package main

import (
	"github.com/ariavoice/streamkit/internal/bootstrap"
)

func main() {
	bootstrap.Run()
}
