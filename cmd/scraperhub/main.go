// Command scraperhub serves scraper jobs over HTTP and websockets.
//
// Usage:
//
//	scraperhub serve --config config.yaml
//	scraperhub plugins
//
// Every config key can be overridden with a SCRAPERHUB_ prefixed environment
// variable, e.g. SCRAPERHUB_SERVER_PORT=9090. A .env file in the working
// directory is loaded first.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
