// Package main is the operator tool for managing club members.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	admincmd "github.com/torresgol10/movie-club/internal/cmd/clubadmin"
)

func main() {
	cfg, err := admincmd.ParseConfig(flag.CommandLine, os.Args[1:], os.LookupEnv)
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[ADMIN] ")

	if err := admincmd.Run(context.Background(), cfg, os.Stdout); err != nil {
		log.Fatalf("admin command failed: %v", err)
	}
}
