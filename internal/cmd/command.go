package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/jessevdk/go-flags"
	"github.com/nguyengg/gogextract/internal/config"
)

type GogExtract struct {
	Profile string `short:"p" long:"profile" description:"override the AWS profile from the .gogextract file"`
	Split   Split  `command:"split" alias:"x" description:"split local installers into their shell script, bootstrap archive, and payload archive"`
	Index   Index  `command:"index" alias:"i" description:"index the payload archive of local or remote installers without downloading them"`
	Fetch   Fetch  `command:"fetch" alias:"f" description:"fetch individual files from the payload archive of a local or remote installer"`
}

func NewParser() (*flags.Parser, error) {
	opts := &GogExtract{}

	p := flags.NewNamedParser("gogextract", flags.Default)
	if _, err := p.AddGroup("Global Options", "", opts); err != nil {
		return nil, err
	}

	p.CommandHandler = func(command flags.Commander, args []string) error {
		if command == nil {
			return nil
		}

		name, err := config.LoadProfile(context.Background(), opts.Profile)
		if err != nil {
			return fmt.Errorf("load config %s error: %w", name, err)
		}
		if name != "" {
			log.Printf("loaded config from %s", name)
		}

		return command.Execute(args)
	}

	return p, nil
}
