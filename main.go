package main

import "github.com/jfmyers9/tapedeck/cmd"

func main() {
	cmd.Execute()
}
