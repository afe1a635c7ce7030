package main

import (
	"github.com/vietddude/notefetch/internal/cli"
)

func main() {
	cli.Execute()
}
