package main

import "taskverify/cmd"

func main() {
	cmd.Run()
}
