// Package pcap captures packets through libpcap and aggregates them into
// telemetry frames.
package pcap

import (
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/hed1ad/streamguard/pkg/io/packet"
)

// NewFileReader creates a reader for capture files in any format libpcap reads.
func NewFileReader(filename string, opts ...packet.Option) (*packet.Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, err
	}
	return newReader(handle, opts)
}

// NewLiveReader creates a reader capturing on a network interface.
// filter, when set, is a BPF expression.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration, filter string, opts ...packet.Option) (*packet.Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, err
	}
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return nil, err
		}
	}
	return newReader(handle, opts)
}

func newReader(handle *pcap.Handle, opts []packet.Option) (*packet.Reader, error) {
	closer := func() error {
		handle.Close()
		return nil
	}
	r, err := packet.NewReader(handle, handle.LinkType(), closer, opts...)
	if err != nil {
		handle.Close()
		return nil, err
	}
	return r, nil
}
