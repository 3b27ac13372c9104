package main

import "github.com/stemsi/exstem-quiz/internal/cli"

func main() {
	cli.Execute()
}
