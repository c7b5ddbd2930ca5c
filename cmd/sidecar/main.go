// Command sidecar runs the mesh sidecar proxy: a transparent inbound and
// outbound HTTP gateway that resolves routes, balances, and retries against
// a control-plane-supplied profile/discovery service.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
