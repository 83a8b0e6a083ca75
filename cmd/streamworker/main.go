// Command streamworker runs the media streaming worker: a WebSocket
// gateway accepting start_stream/stop_stream/set_moment_state commands
// and serving each stream's codec/frame/moment/ended messages.
package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tri2820/unblink-sub001/internal/config"
	"github.com/tri2820/unblink-sub001/internal/server"
	"github.com/tri2820/unblink-sub001/internal/util"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "streamworker",
		Short: "Per-source media streaming worker",
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket gateway and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			util.InitLogger(verbose)
			if port == 0 {
				port = config.ServerPort()
			}
			srv := server.New(config.MomentsRoot())
			if err := srv.ListenAndServe(fmt.Sprintf(":%d", port)); err != nil {
				return errors.Wrapf(err, "serve on port %d", port)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (defaults to config server.port)")
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the streamworker version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}
}

const version = "0.1.0"
