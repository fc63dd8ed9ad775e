package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweetpotato0/sensei/mcpserver"
	"github.com/sweetpotato0/sensei/rag/pipeline"
	"github.com/sweetpotato0/sensei/rag/source"
	"github.com/sweetpotato0/sensei/server"
)

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			a.logger.Warn("shutdown", "error", err)
		}
	}()
	return fn(ctx, a)
}

func serveCmd() *cobra.Command {
	var addr string
	var noMCP bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				opts := []server.Option{
					server.WithIndexer(a.indexer),
					server.WithRegistry(a.registry),
				}
				if !noMCP {
					opts = append(opts, server.WithMCP(mcpserver.HTTPHandler(mcpserver.New(version, a.pipeline, a.registry))))
				}
				return server.New(cfg.Server, a.pipeline, opts...).Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides the config")
	cmd.Flags().BoolVar(&noMCP, "no-mcp", false, "do not mount the MCP endpoint at /mcp")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				return mcpserver.RunStdio(ctx, mcpserver.New(version, a.pipeline, a.registry))
			})
		},
	}
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <collection> <video-id> <transcript.json>",
		Short: "Index a speech-to-text transcript",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer f.Close()

			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := a.indexer.IngestTranscript(ctx, args[0], args[1], f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d chunks of %s into %s\n", res.Chunks, res.VideoID, res.Collection)
				return nil
			})
		},
	}
}

func askCmd() *cobra.Command {
	var (
		internet bool
		noIndex  bool
		topN     int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "ask <collection> <question>",
		Short: "Answer a question and print the sources",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := pipeline.NewRequest(strings.Join(args[1:], " "), args[0])
			req.UseInternal = !noIndex
			req.UseExternal = internet
			req.TopN = topN

			return withApp(cmd, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if asJSON {
					res, err := a.pipeline.Ask(ctx, req)
					if err != nil {
						return err
					}
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(res)
				}

				ans, err := a.pipeline.Answer(ctx, req)
				if err != nil {
					return err
				}
				for _, w := range ans.Warnings {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
				}
				for chunk, err := range ans.Stream.All() {
					if err != nil {
						fmt.Fprintln(out)
						return err
					}
					fmt.Fprint(out, chunk.Token)
				}
				fmt.Fprintln(out)

				if ans.Contexts.Empty() {
					return nil
				}
				fmt.Fprintln(out, "\nSources:")
				for i, it := range ans.Contexts.Items() {
					link := source.Link(it.Context)
					if link == "" {
						link = string(it.Origin)
					}
					fmt.Fprintf(out, "  [%d] %.3f %s\n", i+1, it.Similarity, link)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&internet, "internet", false, "include web search results")
	cmd.Flags().BoolVar(&noIndex, "no-index", false, "skip the course index")
	cmd.Flags().IntVar(&topN, "top-n", 5, "number of contexts given to the model")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the scored result as JSON")
	return cmd
}
