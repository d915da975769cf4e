package main

import (
	"github.com/flowacctd/conntracct/cmd"
)

func main() {
	cmd.Execute()
}
