package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cove/internal/client"
)

func main() {
	server := flag.String("server", envOr("COVE_SERVER", "http://localhost:8080"), "cove server base URL")
	key := flag.String("key", os.Getenv("COVE_KEY"), "API key (or COVE_KEY)")
	flag.Parse()

	if *key == "" {
		fmt.Fprintln(os.Stderr, "Error: no API key (use -key or COVE_KEY)")
		os.Exit(1)
	}

	paths, err := client.ValidatePaths(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c := client.New(*server, *key)
	ctx := context.Background()

	for _, path := range paths {
		uploaded, err := c.Upload(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("%s -> %s\n", path, uploaded.URL)
	}
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
