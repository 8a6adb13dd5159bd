package main

import "github.com/capreel/capreel/cmd"

func main() {
	cmd.Execute()
}
