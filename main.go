package main

import "github.com/aurum-app/facerank/cmd"

func main() {
	cmd.Execute()
}
