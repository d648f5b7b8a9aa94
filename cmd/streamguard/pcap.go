package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/hed1ad/streamguard/pkg/io/packet"
	"github.com/hed1ad/streamguard/pkg/io/pcap"
)

func newPcapCmd(a *app) *cobra.Command {
	var (
		iface   string
		filter  string
		snaplen int32
		promisc bool
		libpcap bool
	)

	cmd := &cobra.Command{
		Use:   "pcap [file.pcap]",
		Short: "Detect anomalies in network traffic",
		Long: "pcap aggregates packets into per-interval traffic counters and runs them " +
			"through the configured algorithms. It reads a capture file, or captures live with --iface.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []packet.Option{
				packet.WithInterval(a.runtime.Batch.Interval.Std()),
				packet.WithBatchSize(a.runtime.Batch.Size),
			}

			var (
				r   *packet.Reader
				err error
			)
			switch {
			case iface != "" && len(args) > 0:
				return errors.New("pass either a capture file or --iface")
			case iface != "":
				r, err = pcap.NewLiveReader(iface, snaplen, promisc, time.Second, filter, opts...)
			case len(args) == 0:
				return errors.New("capture file or --iface required")
			case libpcap:
				r, err = pcap.NewFileReader(args[0], opts...)
			default:
				r, err = packet.OpenFile(args[0], opts...)
			}
			if err != nil {
				return err
			}
			return a.serve(cmd, r)
		},
	}
	cmd.Flags().StringVarP(&iface, "iface", "i", "", "capture live on this interface")
	cmd.Flags().StringVar(&filter, "filter", "", "BPF filter for live capture")
	cmd.Flags().Int32Var(&snaplen, "snaplen", 65536, "live capture snapshot length")
	cmd.Flags().BoolVar(&promisc, "promisc", false, "capture in promiscuous mode")
	cmd.Flags().BoolVar(&libpcap, "libpcap", false, "read capture files through libpcap")
	return cmd
}
