package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/preserve/pkg/preserve/cache"
	"github.com/jamesainslie/preserve/pkg/preserve/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the digest cache",
	Long: `Commands for managing the digest cache.

The cache remembers the hashes of files that have been copied or verified so
unchanged files are not read again. An entry is only used while the file keeps
its size and modification time. Cache data is stored in the XDG cache
directory (typically ~/.cache/preserve/digests).`,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all cached digests",
	Long:  `Removes every cached digest. The next run hashes every file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cachePath := digestCachePath()

		if _, err := os.Stat(cachePath); os.IsNotExist(err) {
			fmt.Println("Cache is already empty.")
			return nil
		}

		if err := os.RemoveAll(cachePath); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}

		fmt.Println("Cache cleared.")
		return nil
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Long:  `Displays the cache location, its size on disk and the number of cached files.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cachePath := digestCachePath()

		if _, err := os.Stat(cachePath); os.IsNotExist(err) {
			fmt.Println("Cache: empty (no cache directory)")
			fmt.Printf("Cache location: %s\n", cachePath)
			return nil
		}

		var size int64
		err := filepath.Walk(cachePath, func(_ string, info os.FileInfo, err error) error {
			if err == nil && !info.IsDir() {
				size += info.Size()
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to calculate cache size: %w", err)
		}

		c, err := cache.Open(cachePath)
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer c.Close()
		entries, err := c.Len()
		if err != nil {
			return fmt.Errorf("failed to count cache entries: %w", err)
		}

		fmt.Printf("Cache location: %s\n", cachePath)
		fmt.Printf("Cache size: %s\n", humanize.IBytes(uint64(size)))
		fmt.Printf("Cached files: %s\n", humanize.Comma(int64(entries)))
		return nil
	},
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show cache location",
	Long:  `Prints the path to the digest cache directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(digestCachePath())
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cachePathCmd)
	rootCmd.AddCommand(cacheCmd)
}

// digestCachePath honours cache.path from the configuration.
func digestCachePath() string {
	if cfg, err := loadConfig(); err == nil {
		return cfg.CachePath()
	}
	return config.DigestCacheDir()
}
