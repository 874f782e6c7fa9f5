package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"llmd/pkg/types"
)

// queryFlags are shared by run and query.
type queryFlags struct {
	model       string
	system      string
	temperature float64
	maxTokens   int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model reference (catalog id or local path)")
	cmd.Flags().StringVar(&f.system, "system", "", "System prompt")
	cmd.Flags().Float64VarP(&f.temperature, "temperature", "t", 0, "Sampling temperature")
	cmd.Flags().IntVar(&f.maxTokens, "max-tokens", 0, "Token budget (0 = derived from memory headroom)")
}

func (f *queryFlags) request(app *app, prompt string) types.QueryRequest {
	model := f.model
	if model == "" {
		model = app.cfg.DefaultModel
	}
	return types.QueryRequest{
		Model:       model,
		Prompt:      prompt,
		System:      f.system,
		Temperature: f.temperature,
		MaxTokens:   f.maxTokens,
	}
}

func newRunCmd(opts *rootOpts) *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "run <prompt>",
		Short: "Execute a single free-text query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			res, err := app.orch.Respond(cmd.Context(), flags.request(app, prompt))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Response)
			fmt.Fprintf(cmd.ErrOrStderr(), "[%s, ~%d tokens, %.2fs]\n",
				res.ModelID, res.ApproxTokens, res.DurationSeconds)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newQueryCmd(opts *rootOpts) *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query <prompt>",
		Short: "Execute a structured query and print the decoded JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}
			prompt := strings.Join(args, " ")
			var out json.RawMessage
			if _, err := app.orch.QueryStructured(cmd.Context(), flags.request(app, prompt), &out); err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, out, "", "  "); err != nil {
				// Already validated JSON; fall back to the raw bytes.
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newChatCmd(opts *rootOpts) *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive multi-turn session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}
			model := flags.model
			if model == "" {
				model = app.cfg.DefaultModel
			}
			if model == "" {
				return fmt.Errorf("chat requires a model: pass --model or set default_model")
			}

			sess := app.orch.NewSession(model, flags.system)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chatting with %s (/reset clears history, /quit exits)\n", model)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				switch line {
				case "":
					continue
				case "/quit", "/exit":
					return nil
				case "/reset":
					sess.Reset()
					fmt.Fprintln(out, "history cleared")
					continue
				}
				reply, err := sess.Send(cmd.Context(), line)
				if err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
					continue
				}
				fmt.Fprintln(out, reply)
			}
			return scanner.Err()
		},
	}
	flags.register(cmd)
	return cmd
}
