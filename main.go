package main

import "github.com/Yates-Labs/storyimager/cmd"

func main() {
	cmd.Execute()
}
