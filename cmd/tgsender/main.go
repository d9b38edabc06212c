package main

import "tgsender/cmd"

func main() {
	cmd.Execute()
}
