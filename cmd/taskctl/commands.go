package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"llm-task-manager/internal/app"
	"llm-task-manager/internal/config"
	"llm-task-manager/internal/dialogue"
	"llm-task-manager/internal/logging"
	"llm-task-manager/internal/pipeline"
	"llm-task-manager/internal/services"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taskctl",
		Short: "Talk to the task assistant from a terminal",
		Long: `taskctl drives the task assistant pipeline locally.

Use "chat" for a full conversation, or "classify" and "extract" to run a
single pipeline stage against the configured language model.`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newChatCmd(),
		newClassifyCmd(),
		newExtractCmd(),
		newSchemaCmd(),
		newTokenCmd(),
	)
	return root
}

// withApp loads configuration, builds the application and runs fn with it
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func parseIntent(name string) (pipeline.Intent, error) {
	intent := pipeline.Intent(name)
	if !intent.Valid() {
		names := make([]string, len(pipeline.Intents))
		for i, known := range pipeline.Intents {
			names[i] = string(known)
		}
		return "", fmt.Errorf("unknown intent %q (expected one of %s)", name, strings.Join(names, ", "))
	}
	return intent, nil
}

func newChatCmd() *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Hold a conversation on stdin",
		Long: `Read one message per line and print the assistant's reply.

The conversation is keyed by --user, so with a persistent conversation store
an unfinished request resumes across runs. Type /quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return chat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.Machine, "cli:"+user)
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "local", "conversation owner")
	return cmd
}

// turnHandler is the part of the dialogue machine the chat loop drives
type turnHandler interface {
	HandleText(ctx context.Context, key, text string) (dialogue.Reply, error)
}

func chat(ctx context.Context, in io.Reader, out io.Writer, conversations turnHandler, key string) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "/quit" {
			return nil
		}
		if line != "" {
			reply, err := conversations.HandleText(ctx, key, line)
			if err != nil && !reply.Executed() {
				return err
			}
			fmt.Fprintln(out, reply.Text)
			if err != nil {
				fmt.Fprintf(out, "warning: %v\n", err)
			}
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Print the intent the model assigns to text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				intent, err := a.Classifier.Identify(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), intent)
				return nil
			})
		},
	}
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <intent> <text>",
		Short: "Print the parameters the model extracts for an intent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := parseIntent(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				extraction, err := a.Extractor.Extract(ctx, intent, strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				data, err := pipeline.EncodeExtraction(extraction)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				if _, missing, reasons, err := pipeline.CheckComplete(extraction); err == nil && len(missing) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "missing: %s\n", missing)
					for _, reason := range reasons {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", reason)
					}
				}
				return nil
			})
		},
	}
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <intent>",
		Short: "Print the JSON schema sent to the model for an intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			intent, err := parseIntent(args[0])
			if err != nil {
				return err
			}
			data, err := pipeline.SchemaJSON(intent)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		secret string
		name   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("a signing secret is required (--secret or JWT_SECRET)")
			}
			token, err := services.NewJWTService(secret, ttl).GenerateToken(args[0], name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC signing secret")
	cmd.Flags().StringVar(&name, "name", "", "display name carried in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
