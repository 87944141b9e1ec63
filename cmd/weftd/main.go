// Command weftd is the weft node and identity toolkit entrypoint.
package main

import "github.com/weftmesh/weft/internal/cli"

func main() {
	cli.Execute()
}
