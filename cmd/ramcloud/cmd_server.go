package main

import (
	"context"
	"net"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Jingle-Wang/RAMCloud/internal/server"
)

var cmdServer = &cobra.Command{
	Use:   "server",
	Short: "Run the object store server",
	Long: `
The "server" command runs the stub RPC server. All state lives in memory;
stopping the server discards it.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return RunServer(serverOptions)
	},
}

// ServerOptions bundles all options for the server command.
type ServerOptions struct {
	Listen     string
	Buckets    uint64
	LogSize    uint64
	LargePages bool
}

var serverOptions ServerOptions

func init() {
	cmdRoot.AddCommand(cmdServer)

	f := cmdServer.Flags()
	f.StringVar(&serverOptions.Listen, "listen", ":7040", "address to listen on")
	f.Uint64Var(&serverOptions.Buckets, "buckets", server.DefaultBuckets, "number of hash table buckets (use a power of two)")
	f.Uint64Var(&serverOptions.LogSize, "log-size", server.DefaultLogSize, "object log arena size in bytes")
	f.BoolVar(&serverOptions.LargePages, "large-pages", false, "back the index and log with large pages when available")
}

func RunServer(opts ServerOptions) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := server.New(server.Config{
		Buckets:    opts.Buckets,
		LogSize:    opts.LogSize,
		LargePages: opts.LargePages,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	ln, err := net.Listen("tcp", opts.Listen)
	if err != nil {
		return err
	}
	log.Infof("listening on %s", ln.Addr())

	err = s.Serve(ctx, ln)
	log.Info("server stopped")
	return err
}
