// Command ascjwt issues and checks App Store Connect API tokens and makes
// authenticated requests with them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
