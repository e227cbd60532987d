// cmd/chainctl/main.go – chain inspection & maintenance CLI
// -----------------------------------------------------------------------------
// Opens a chain's redo log directly (no daemon) and provides read-only
// inspection plus the administrative write/compact operations needed to
// exercise the engine from a terminal. Root command is `chainctl`.
// -----------------------------------------------------------------------------
// Examples
//   chainctl stats --path ./data/chain.redo
//   chainctl write --path ./data/chain.redo --data 'hello world'
//   chainctl load --path ./data/chain.redo --hash 9f2a...
//   chainctl compact --path ./data/chain.redo
// -----------------------------------------------------------------------------
// Configuration
//   chainctl reads no config file or environment variable; the redo-log
//   path comes from --path and the other chain settings are fixed in code
// -----------------------------------------------------------------------------

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"ledgerchain/core"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("chainctl failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "chainctl",
		Short: "Inspect and maintain a ledgerchain redo log",
	}
	root.AddCommand(newStatsCommand(), newWriteCommand(), newLoadCommand(), newCompactCommand())
	return root
}

func openChain(path string) (*core.Chain, error) {
	return core.OpenChain(core.ChainConfig{
		Name:        "chainctl",
		Path:        path,
		HashRoutine: core.HashBlake3,
		Format:      core.FormatMessagePack,
		Integrity:   core.IntegrityDistributed,
		WriterQueue: 16,
	}, &core.Pipeline{})
}

func newStatsCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print redo log and index counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := openChain(path)
			if err != nil {
				return err
			}
			defer chain.Close()

			metrics := chain.Metrics()
			fmt.Printf("writes=%d flushes=%d flips=%d bytes=%d cache_hits=%d cache_misses=%d live_keys=%d\n",
				metrics.Writes, metrics.Flushes, metrics.Flips, metrics.BytesWritten,
				metrics.CacheHits, metrics.CacheMisses, chain.Indices().Count())
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "./data/chain.redo", "redo log path")
	return cmd
}

func newWriteCommand() *cobra.Command {
	var path, data string
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Append one event with the given payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := openChain(path)
			if err != nil {
				return err
			}
			defer chain.Close()

			var meta core.Metadata
			meta.Append(core.CoreMetadata{Kind: core.MetaData, Key: core.PrimaryKey(len(data))})
			headers, err := chain.Write(context.Background(), core.ScopeOne, core.Event{
				Meta: meta, Data: []byte(data), HasData: true,
			})
			if err != nil {
				return err
			}
			for _, h := range headers {
				fmt.Println(h.EventHash.Hex())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "./data/chain.redo", "redo log path")
	cmd.Flags().StringVar(&data, "data", "", "payload to write")
	return cmd
}

func newLoadCommand() *cobra.Command {
	var path, hashHex string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load one event by hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := core.HashFromHex(hashHex)
			if err != nil {
				return fmt.Errorf("invalid hash: %w", err)
			}
			chain, err := openChain(path)
			if err != nil {
				return err
			}
			defer chain.Close()

			event, err := chain.Load(context.Background(), hash)
			if err != nil {
				return err
			}
			fmt.Printf("%s has_data=%t data=%q\n", event.Meta.String(), event.HasData, string(event.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "./data/chain.redo", "redo log path")
	cmd.Flags().StringVar(&hashHex, "hash", "", "event hash in hex")
	return cmd
}

func newCompactCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Flip the redo log, dropping events the registered compactors reject",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := openChain(path)
			if err != nil {
				return err
			}
			defer chain.Close()
			return chain.Compact(context.Background())
		},
	}
	cmd.Flags().StringVar(&path, "path", "./data/chain.redo", "redo log path")
	return cmd
}
