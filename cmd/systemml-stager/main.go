// Command systemml-stager copies build artifacts into the python package
// directory before it is distributed.
package main

import "github.com/systemml/systemml-stager/cmd/systemml-stager/cmd"

func main() {
	cmd.Execute()
}
