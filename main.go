// Public domain.

package main

import "github.com/soniakeys/jointcal/internal/jcprog"

func main() {
	jcprog.Main()
}
