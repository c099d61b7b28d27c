package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chxlky/trello-board-planner/integrations"
	"github.com/chxlky/trello-board-planner/internal/config"
	"github.com/chxlky/trello-board-planner/internal/planner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const demoDescription = `
Create a website for a local restaurant with the following features:
- Modern, responsive design
- Online menu with photos
- Table reservation system
- Contact form
- Integration with food delivery platforms
`

// app holds what every command needs once configuration has loaded.
type app struct {
	cfg     *config.Config
	planner *planner.Planner
}

func newApp() (*app, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg, err := config.Load(config.New())
	if err != nil {
		return nil, err
	}

	trelloClient, err := integrations.NewTrelloClient(cfg.Trello.APIKey, cfg.Trello.Token, cfg.Trello.BaseURL)
	if err != nil {
		return nil, err
	}

	llm, err := integrations.NewOpenAIClient(integrations.OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.Model,
		BaseURL: cfg.OpenAI.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	p := planner.New(trelloClient, planner.NewLLMGenerator(llm), planner.Options{
		MaxAttempts: cfg.Planner.MaxAttempts,
		RetryDelay:  cfg.Planner.RetryDelay,
		Logger:      zap.L(),
	})

	return &app{cfg: cfg, planner: p}, nil
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "boardplanner",
		Short:         "Generate populated Trello boards from project descriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			loaded, err := newApp()
			if err != nil {
				zap.L().Error("Failed to initialise", zap.Error(err))
				return err
			}
			*a = *loaded
			return nil
		},
	}

	root.AddCommand(
		newCreateCmd(a),
		newBoardsCmd(a),
		newAddListCmd(a),
		newAddCardCmd(a),
		newDemoCmd(a),
		newServeCmd(a),
	)
	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newCreateCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create [description]",
		Short: "Create a board from a project description",
		RunE: func(cmd *cobra.Command, args []string) error {
			description := strings.Join(args, " ")
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read description: %w", err)
				}
				description = string(data)
			}
			if strings.TrimSpace(description) == "" {
				return fmt.Errorf("a project description is required")
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			url, err := a.planner.CreateBoard(ctx, description)
			if err != nil {
				zap.L().Error("Error creating board", zap.Error(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the project description from a file")
	return cmd
}

func newBoardsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "boards",
		Short: "List boards of the authenticated member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, b := range a.planner.ListBoards(cmd.Context()) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", b.ID, b.Name, b.URL)
			}
			return nil
		},
	}
}

func newAddListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-list <boardID> <name>",
		Short: "Add a list to an existing board",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.planner.AddList(cmd.Context(), args[0], args[1])
			if err != nil {
				zap.L().Error("Error adding list", zap.String("boardID", args[0]), zap.Error(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newAddCardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-card <listID> <title> [description]",
		Short: "Add a card to an existing list",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var description string
			if len(args) == 3 {
				description = args[2]
			}
			id, err := a.planner.AddCard(cmd.Context(), args[0], args[1], description)
			if err != nil {
				zap.L().Error("Error adding card", zap.String("listID", args[0]), zap.Error(err))
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

// newDemoCmd creates a board for a sample restaurant project and lists the
// member's boards. Failures are printed, not returned.
func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Create a sample board and list your boards",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			url, err := a.planner.CreateBoard(ctx, demoDescription)
			if err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "Successfully created board! You can view it at: %s\n", url)

			fmt.Fprintln(out, "\nYour boards:")
			for _, b := range a.planner.ListBoards(ctx) {
				fmt.Fprintf(out, "- %s: %s\n", b.Name, b.URL)
			}
			return nil
		},
	}
}
