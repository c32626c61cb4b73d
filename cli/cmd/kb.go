package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/askstream/cli/config"
	"github.com/pithecene-io/askstream/cli/render"
)

// KnowledgeBasesCommand returns the kb command, which lists the
// routing targets a question can be sent to.
func KnowledgeBasesCommand() *cli.Command {
	return &cli.Command{
		Name:    "kb",
		Aliases: []string{"knowledge-bases"},
		Usage:   "List knowledge bases",
		Flags:   append(OutputFlags(), ConfigFlag),
		Action:  kbAction,
	}
}

func kbAction(c *cli.Context) error {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	if err := r.Render(cfg.KnowledgeBaseTable()); err != nil {
		return fmt.Errorf("render knowledge bases: %w", err)
	}
	return nil
}
