package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/cobra"

	"github.com/landfill/clairkeys/config"
	"github.com/landfill/clairkeys/storage"
)

var (
	minioPrefix    string
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "Inspect the MinIO bucket",
	Long:  `List objects in the configured MinIO bucket, optionally filtered by prefix, and delete matches with --delete.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		fmt.Printf("MinIO: %s, bucket %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("cannot connect to MinIO: %v", err)
		}
		client := storage.GetMinioClient()

		ctx := context.Background()
		opts := minio.ListObjectsOptions{Prefix: minioPrefix, Recursive: minioRecursive}

		var count int
		var total int64
		for obj := range client.ListObjects(ctx, cfg.MinioBucket, opts) {
			if obj.Err != nil {
				log.Fatalf("listing failed: %v", obj.Err)
			}
			count++
			total += obj.Size

			if minioDelete {
				if err := storage.RemoveObject(ctx, obj.Key); err != nil {
					log.Printf("failed to delete %s: %v", obj.Key, err)
					continue
				}
				fmt.Printf("deleted %s\n", obj.Key)
			} else {
				fmt.Printf("%10d  %s\n", obj.Size, obj.Key)
			}
		}
		fmt.Printf("%d objects, %d bytes\n", count, total)
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "object key prefix")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", true, "recurse into prefixes")
	minioCmd.Flags().BoolVar(&minioDelete, "delete", false, "delete the listed objects")
	rootCmd.AddCommand(minioCmd)
}
