package main

import (
	"github.com/odvcencio/grit/pkg/remote"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string
	var configPath string
	var readOnly bool

	cmd := &cobra.Command{
		Use:   "serve [repo-path]",
		Short: "Serve a repository over the bundle protocol",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := &remote.ServerConfig{}
			if configPath != "" {
				loaded, err := remote.LoadServerConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			// Flags override file values.
			if addr != "" {
				cfg.Addr = addr
			}
			if len(args) > 0 {
				cfg.RepoPath = args[0]
			}
			if cmd.Flags().Changed("read-only") {
				cfg.ReadOnly = readOnly
			}

			repoPath, listenAddr := cfg.RepoPath, cfg.Addr
			if repoPath == "" {
				repoPath = "."
			}
			if listenAddr == "" {
				listenAddr = ":8417"
			}
			say(cmd, "Serving %s on %s\n", repoPath, listenAddr)
			return remote.ListenAndServe(cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8417)")
	cmd.Flags().StringVar(&configPath, "config", "", "TOML server config file")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "reject pushes")
	return cmd
}
