package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"web-app-firewall-console/internal/console"
)

const pauseHint = "Type p and Enter to pause or resume, Ctrl-C to quit."

// listenForPause reads lines from stdin in the background and toggles on
// every "p". The reader is abandoned when the command exits.
func listenForPause(toggle func()) {
	fmt.Fprintln(os.Stderr, console.Hint(pauseHint))
	go readPauseKeys(os.Stdin, toggle)
}

func readPauseKeys(in io.Reader, toggle func()) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if strings.EqualFold(strings.TrimSpace(sc.Text()), "p") {
			toggle()
		}
	}
}
