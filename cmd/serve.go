package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vcscache/vcscache/pkg/cacheserver"
)

func addServeCommand(ctx context.Context, rootCmd *cobra.Command) {
	var dir string
	var port uint16
	var outboundIP string
	var cmdServe = &cobra.Command{
		Use:   "serve",
		Short: "Run the reference index and artifact server",
		Args:  cobra.MaximumNArgs(0),
		RunE: func(_ *cobra.Command, _ []string) error {
			server, err := cacheserver.Start(dir, outboundIP, port, log.StandardLogger())
			if err != nil {
				return err
			}

			external := server.ExternalURL()
			log.Infof("serving records at %s/index and artifacts at %s/queue", external, external)
			log.Infof("point clients at it with --index-url %s/index --queue-url %s/queue", external, external)

			<-ctx.Done()
			return server.Close()
		},
	}
	cmdServe.Flags().StringVar(&dir, "dir", "", "directory holding the record database and artifact blobs")
	cmdServe.Flags().Uint16Var(&port, "port", 0, "port to listen on, 0 picks a free one")
	cmdServe.Flags().StringVar(&outboundIP, "outbound-ip", "", "IP address to advertise, defaults to the interface facing the default route")
	rootCmd.AddCommand(cmdServe)
}
