package main

import "github.com/ppiankov/enclavecheck/internal/cli"

func main() {
	cli.Execute()
}
