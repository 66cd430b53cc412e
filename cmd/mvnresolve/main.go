package main

import (
	"ocm.software/open-component-model/bindings/go/maven/cli/cmd"
)

func main() {
	cmd.Execute()
}
