package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lumina-ai/lumina/app/core"
	v1 "github.com/lumina-ai/lumina/app/logic/v1"
	"github.com/lumina-ai/lumina/app/logic/v1/process"
	"github.com/lumina-ai/lumina/pkg/kv/pgkv"
	"github.com/lumina-ai/lumina/pkg/types"
)

type Options struct {
	ConfigPath string
}

func (o *Options) AddFlags(flagSet *pflag.FlagSet) {
	// Add flags for generic options
	flagSet.StringVarP(&o.ConfigPath, "config", "c", "", "init service by given config")
}

func NewCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "service",
		Short: "storage service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func Run(opts *Options) error {
	app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
	defer app.Close()

	proc := process.NewProcess(app)
	proc.Start()
	defer proc.Stop()

	fmt.Println("Service starting...")
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs
	return nil
}

// NewInstallCommand 初始化 postgres 数据表
func NewInstallCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "install",
		Short: "install storage tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := core.MustLoadBaseConfig(opts.ConfigPath)
			db := pgkv.MustSetup(cfg.Storage.Postgres, types.AllTableNames())
			defer db.Close()
			if err := db.Install(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("tables installed")
			return nil
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// NewSweepCommand 立即执行一次归档会话清理
func NewSweepCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "sweep archived conversations beyond retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
			defer app.Close()

			if app.Cfg().Retention.ArchivedDays <= 0 {
				fmt.Println("retention is not configured, nothing to sweep")
				return nil
			}

			deleted, err := process.SweepArchivedConversations(context.Background(), process.NewProcess(app))
			if err != nil {
				return err
			}
			fmt.Printf("swept %d conversations\n", deleted)
			return nil
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

// NewEstimateCommand 输出底层存储用量
func NewEstimateCommand() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "print storage usage estimate",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := core.MustSetupCore(core.MustLoadBaseConfig(opts.ConfigPath))
			defer app.Close()

			ctx := context.Background()
			usage := v1.NewStorageLogic(ctx, app).StorageEstimate()
			assistants, err := app.Store().AssistantStore().Total(ctx)
			if err != nil {
				return err
			}

			raw, err := json.Marshal(struct {
				types.StorageUsage
				Assistants int64 `json:"assistants"`
			}{StorageUsage: usage, Assistants: assistants})
			if err != nil {
				return err
			}
			fmt.Println(string(raw))
			return nil
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}
