package main

import (
	"errors"
	"log"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/gogextract/internal/cmd"
)

func main() {
	p, err := cmd.NewParser()
	if err != nil {
		log.Fatal(err)
	}

	_, err = p.Parse()
	exit(err)
}

// exitCode is 0 on success or help, 2 on usage errors, 1 otherwise.
func exitCode(err error) int {
	var flagsErr *flags.Error
	switch {
	case err == nil || flags.WroteHelp(err):
		return 0
	case errors.As(err, &flagsErr):
		return 2
	default:
		return 1
	}
}
