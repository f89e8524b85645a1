package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lumina-ai/lumina/cmd/service"
)

func main() {
	root := &cobra.Command{
		Use:   "lumina",
		Short: "lumina storage service",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("empty command")
		},
	}

	root.AddCommand(service.NewCommand(), service.NewInstallCommand(), service.NewSweepCommand(), service.NewEstimateCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
