package main

import "github.com/mvp-joe/signet/internal/cli"

func main() {
	cli.Execute()
}
