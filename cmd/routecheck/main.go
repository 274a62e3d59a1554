// Command routecheck runs the routing pipeline offline. It shows what the
// edge would do with a URL and checks routing config files before deploy.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
