package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/landfill/clairkeys/cache"
	"github.com/landfill/clairkeys/config"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Test the Redis connection",
	Long:  `Connect to Redis with the configured credentials and run a basic read/write check.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("Redis: %s:%s, DB %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("cannot connect to Redis: %v", err)
		}
		fmt.Println("connected")

		if err := cache.TestRedis(); err != nil {
			log.Fatalf("Redis check failed: %v", err)
		}
		fmt.Println("read/write check passed")

		if err := cache.CloseRedis(); err != nil {
			log.Printf("error closing Redis connection: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
