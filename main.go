package main

import "github.com/derickschaefer/filings/cmd"

func main() {
	cmd.Execute()
}
