// Command enginehost lists audio back-ends and devices and runs the engine driver on one of them.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
