// picarnav drives a PiCar-X along a line: it follows the ground line,
// avoids obstacles, reacts to traffic signs and accepts operator commands.
package main

import (
	"context"
	"fmt"
	"os"
)

func main() {
	if err := Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "picarnav:", err)
		os.Exit(1)
	}
}
