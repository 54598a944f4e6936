// Command flist is the entry point for the flist archive tool.
package main

import "github.com/threefoldtech/go-flist/cli"

func main() {
	cli.Execute()
}
