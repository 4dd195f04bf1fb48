package main

import "github.com/Rogue-56/pinch/internal/cmd"

func main() {
	cmd.Execute()
}
