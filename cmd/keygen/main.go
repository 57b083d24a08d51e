// Command keygen prints a fresh bridge secret for INTERNAL_BRIDGE_SECRET.
package main

import (
	"fmt"

	"github.com/xraph/slackrelay/signature"
)

func main() {
	fmt.Println(signature.GenerateSecret())
}
