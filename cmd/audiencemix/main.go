package main

import "github.com/eshaffer321/audience-mix/internal/cli"

func main() {
	cli.Execute()
}
