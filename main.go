package main

import "github.com/tanq16/pullq/cmd"

func main() {
	cmd.Execute()
}
