package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/skillindex/internal/httpapi"
	"github.com/dshills/skillindex/internal/indexer"
	"github.com/dshills/skillindex/internal/mcp"
	"github.com/dshills/skillindex/internal/searcher"
	"github.com/dshills/skillindex/pkg/types"
)

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP search API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			srv := httpapi.NewServer(a.manager, a.searcher, &httpapi.Config{
				Addr:     addr,
				APIKey:   a.cfg.Server.APIKey,
				UseCache: a.cfg.Search.Cache,
				Logger:   a.logger,
			})
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			a.logger.Info("mcp server ready, listening on stdio", "version", version)
			srv := mcp.NewServer(a.manager, a.searcher, &mcp.Config{
				APIKey:   a.cfg.Server.APIKey,
				UseCache: a.cfg.Search.Cache,
				Logger:   a.logger,
			})
			return srv.Serve(cmd.Context())
		},
	}
}

func buildCmd() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Rebuild the index from the corpus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.manager.Rebuild(cmd.Context(), source)
			if err != nil {
				return fmt.Errorf("build failed: %w", err)
			}
			printResult(cmd, result)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "corpus-source", "", `"db" or a JSON corpus path (default: corpus.source)`)
	return cmd
}

func updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Append corpus documents that are not indexed yet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.manager.Update(cmd.Context())
			if err != nil {
				return fmt.Errorf("update failed: %w", err)
			}
			printResult(cmd, result)
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var (
		k            int
		engine       string
		hybridWeight float64
		tags         string
		owner        string
		source       string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			req := searcher.Request{
				Query:  strings.Join(args, " "),
				K:      k,
				Engine: engine,
				Filters: searcher.Filters{
					Tags:   types.ParseTags(tags),
					Owner:  owner,
					Source: source,
				},
			}
			if cmd.Flags().Changed("hybrid-weight") {
				req.HybridWeight = &hybridWeight
			}

			resp, err := a.searcher.Search(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			if asJSON {
				data, err := json.MarshalIndent(resp, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal results: %w", err)
				}
				cmd.Println(string(data))
				return nil
			}

			if len(resp.Results) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			cmd.Printf("Engine: %s\n\n", resp.EngineUsed)
			for i, r := range resp.Results {
				marker := ""
				if r.ExactMatch {
					marker = " *"
				}
				cmd.Printf("[%d] %s (%s) %.4f%s\n", i+1, r.Name, r.ID, r.Score, marker)
				if r.Snippet != "" {
					cmd.Printf("    %s\n", r.Snippet)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", searcher.DefaultK, "Number of results")
	cmd.Flags().StringVarP(&engine, "engine", "e", "auto", "Engine: auto, sparse, dense or hybrid")
	cmd.Flags().Float64Var(&hybridWeight, "hybrid-weight", types.DefaultHybridWeight, "Dense share of hybrid scores")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags that must all match")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner filter")
	cmd.Flags().StringVar(&source, "source", "", "Source filter")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output results as JSON")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the stored index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := json.MarshalIndent(a.manager.Status(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal status: %w", err)
			}
			cmd.Println(string(data))
			return nil
		},
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [text]",
		Short: "Check the configured embedding provider end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			emb := a.dense.Embedder()
			if emb == nil {
				return fmt.Errorf("no embedding provider configured (embedding.provider=%q)", a.cfg.Embedding.Provider)
			}
			cmd.Printf("Provider: %s\nModel:    %s\n", emb.Provider(), emb.Model())

			if !a.dense.Available(cmd.Context()) {
				return fmt.Errorf("provider %s did not answer the availability probe", emb.Provider())
			}

			text := "video editor"
			if len(args) > 0 {
				text = strings.Join(args, " ")
			}
			start := time.Now()
			vec, err := a.dense.EncodeQuery(cmd.Context(), text)
			if err != nil {
				return fmt.Errorf("embedding failed: %w", err)
			}
			cmd.Printf("Dimension: %d (norm %.4f) in %s\n", len(vec), vec.Norm(), time.Since(start).Round(time.Millisecond))

			if snap := a.manager.Current(); snap != nil && snap.Meta != nil && snap.Meta.HasDense() {
				match := snap.Meta.DenseProvider == emb.Provider() && snap.Meta.DenseModel == emb.Model()
				cmd.Printf("Index built with %s/%s, compatible: %t\n", snap.Meta.DenseProvider, snap.Meta.DenseModel, match)
			}
			return nil
		},
	}
}

func printResult(cmd *cobra.Command, result *indexer.Result) {
	cmd.Printf("Index %s in %s\n", result.Action, result.Duration)
	cmd.Printf("  Documents indexed: %d\n", result.Indexed)
	if result.Dropped > 0 {
		cmd.Printf("  Records dropped:   %d\n", result.Dropped)
	}
	if m := result.Meta; m != nil {
		cmd.Printf("  Build ID:          %s\n", m.BuildID)
		cmd.Printf("  Total documents:   %d\n", m.DocumentCount)
		cmd.Printf("  Engines:           %s\n", strings.Join(m.AvailableEngines, ", "))
	}
}
