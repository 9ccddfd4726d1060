package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/laic/internal/cache"
	"github.com/gnolang/laic/preview"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the render cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached image",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := preview.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		n, err := clearCache(config.Cache.Dir)
		if err != nil {
			return err
		}
		logger.Debug("cache cleared", zap.String("dir", config.Cache.Dir), zap.Int("entries", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached images from %s\n", n, config.Cache.Dir)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}

// clearCache empties the cache stored in dir and returns how many entries
// it held.
func clearCache(dir string) (int, error) {
	c, err := cache.New(dir)
	if err != nil {
		return 0, err
	}
	n := c.Stats().Entries
	if err := c.InvalidateAll(); err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	return n, nil
}
