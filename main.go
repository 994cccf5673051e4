package main

import "github.com/landfill/clairkeys/cmd"

func main() {
	cmd.Execute()
}
