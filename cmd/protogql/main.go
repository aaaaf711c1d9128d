package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

func build() string {
	short := commit
	if len(commit) > 7 {
		short = commit[:7]
	}
	return fmt.Sprintf("%s (%s)", version, short)
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newApp(os.Stdout).Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("protogql failed")
	}
}

// newApp builds the command tree. Command output goes to out; logs go to
// the global logger.
func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "protogql",
		Usage:   "Expose protobuf services as a GraphQL schema",
		Version: build(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error, fatal, panic)",
				Sources: cli.EnvVars("PROTOGQL_LOG_LEVEL"),
				Value:   "info",
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			level, err := zerolog.ParseLevel(c.String("log-level"))
			if err != nil {
				return ctx, fmt.Errorf("failed to parse log level: %w", err)
			}
			log.Logger = log.Level(level)
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "compile-sdl",
				Usage: "Convert descriptors to a GraphQL SDL document",
				Flags: append(inputFlags(), &cli.StringFlag{
					Name:  "out",
					Usage: "write the SDL to `FILE` instead of stdout",
				}),
				Action: func(ctx context.Context, c *cli.Command) error {
					return compileSDL(ctx, out, sourceOf(c), c.String("out"))
				},
			},
			{
				Name:  "bindings",
				Usage: "List the resolver binding table",
				Flags: inputFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					return printBindings(ctx, out, sourceOf(c))
				},
			},
			{
				Name:  "print-proto",
				Usage: "Render a descriptor set back to .proto files",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "descriptor-set", Usage: "binary FileDescriptorSet `FILE`", Required: true},
					&cli.StringFlag{Name: "out", Usage: "output `DIR`", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return printProto(c.String("descriptor-set"), c.String("out"))
				},
			},
			serveCommand(),
		},
	}
}

func inputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "descriptor-set",
			Usage:   "binary FileDescriptorSet `FILE` (protoc --descriptor_set_out)",
			Sources: cli.EnvVars("PROTOGQL_DESCRIPTOR_SET"),
		},
		&cli.StringFlag{
			Name:    "tree",
			Usage:   "descriptor tree document `FILE` (JSON or YAML)",
			Sources: cli.EnvVars("PROTOGQL_TREE"),
		},
		&cli.StringFlag{
			Name:     "config",
			Usage:    "routing configuration `FILE` (JSON or YAML)",
			Sources:  cli.EnvVars("PROTOGQL_CONFIG"),
			Required: true,
		},
	}
}
