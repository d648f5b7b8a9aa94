// Package packet turns captured network packets into per-interval telemetry.
package packet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/hed1ad/streamguard/pkg/series"
)

// Columns are the series produced per interval.
var Columns = []string{
	"packets",
	"bytes",
	"payload_bytes",
	"tcp",
	"udp",
	"icmp",
	"tcp_syn",
	"tcp_rst",
}

const (
	colPackets = iota
	colBytes
	colPayload
	colTCP
	colUDP
	colICMP
	colSYN
	colRST
)

// Observe adds the features of one packet to an interval row.
func Observe(row []float64, p gopacket.Packet) {
	row[colPackets]++
	row[colBytes] += float64(len(p.Data()))

	if tcpLayer := p.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		row[colTCP]++
		tcp := tcpLayer.(*layers.TCP)
		if tcp.SYN && !tcp.ACK {
			row[colSYN]++
		}
		if tcp.RST {
			row[colRST]++
		}
	} else if p.Layer(layers.LayerTypeUDP) != nil {
		row[colUDP]++
	} else if p.Layer(layers.LayerTypeICMPv4) != nil || p.Layer(layers.LayerTypeICMPv6) != nil {
		row[colICMP]++
	}

	if app := p.ApplicationLayer(); app != nil {
		row[colPayload] += float64(len(app.Payload()))
	}
}

// Aggregator buckets packets into rows of Columns, one per interval.
// Intervals without traffic yield zero rows.
type Aggregator struct {
	interval  time.Duration
	batchSize int
	bucket    time.Time
	open      bool
	row       []float64
	pending   *series.Frame
}

// NewAggregator creates an aggregator emitting frames of batchSize rows.
// A batchSize of 0 never emits until Flush.
func NewAggregator(interval time.Duration, batchSize int) *Aggregator {
	a := &Aggregator{interval: interval, batchSize: batchSize}
	a.reset()
	return a
}

func (a *Aggregator) reset() {
	a.pending = series.Zeros[float64](nil, Columns)
}

// Add accounts p and returns the batches completed by its arrival. Packets
// older than the open interval are accounted to it.
func (a *Aggregator) Add(p gopacket.Packet) []*series.Frame {
	ts := time.Now()
	if md := p.Metadata(); md != nil && !md.Timestamp.IsZero() {
		ts = md.Timestamp
	}
	bucket := ts.UTC().Truncate(a.interval)

	var out []*series.Frame
	switch {
	case !a.open:
		a.start(bucket)
	case bucket.After(a.bucket):
		out = a.commit(out, a.bucket, a.row)
		for next := a.bucket.Add(a.interval); next.Before(bucket); next = next.Add(a.interval) {
			out = a.commit(out, next, make([]float64, len(Columns)))
		}
		a.start(bucket)
	}
	Observe(a.row, p)
	return out
}

// Flush closes the open interval and returns the rows not yet emitted, or nil.
func (a *Aggregator) Flush() *series.Frame {
	if a.open {
		a.pending = a.appendRow(a.pending, a.bucket, a.row)
		a.open = false
	}
	if a.pending.Len() == 0 {
		return nil
	}
	out := a.pending
	a.reset()
	return out
}

func (a *Aggregator) start(bucket time.Time) {
	a.bucket = bucket
	a.row = make([]float64, len(Columns))
	a.open = true
}

func (a *Aggregator) commit(out []*series.Frame, ts time.Time, row []float64) []*series.Frame {
	a.pending = a.appendRow(a.pending, ts, row)
	if a.batchSize > 0 && a.pending.Len() >= a.batchSize {
		out = append(out, a.pending)
		a.reset()
	}
	return out
}

func (a *Aggregator) appendRow(f *series.Frame, ts time.Time, row []float64) *series.Frame {
	f.Index = append(f.Index, ts)
	for c, v := range row {
		f.Values[c] = append(f.Values[c], v)
	}
	return f
}

// Reader aggregates the packets of a source into telemetry frames.
type Reader struct {
	source    *gopacket.PacketSource
	interval  time.Duration
	batchSize int
	closer    func() error
}

// Option configures a Reader.
type Option func(*Reader)

// WithInterval sets the aggregation interval.
func WithInterval(d time.Duration) Option {
	return func(r *Reader) {
		r.interval = d
	}
}

// WithBatchSize sets the number of intervals per streamed batch.
func WithBatchSize(n int) Option {
	return func(r *Reader) {
		r.batchSize = n
	}
}

// NewReader creates a reader over src. closer, when set, is called by Close.
func NewReader(src gopacket.PacketDataSource, decoder gopacket.Decoder, closer func() error, opts ...Option) (*Reader, error) {
	r := &Reader{
		source:    gopacket.NewPacketSource(src, decoder),
		interval:  time.Second,
		batchSize: 60,
		closer:    closer,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.interval <= 0 {
		return nil, fmt.Errorf("aggregation interval must be positive, got %s", r.interval)
	}
	if r.batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", r.batchSize)
	}
	return r, nil
}

// OpenFile reads a pcap file without libpcap.
func OpenFile(filename string, opts ...Option) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	src, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	r, err := NewReader(src, src.LinkType(), file.Close, opts...)
	if err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// Read aggregates every remaining packet into one frame.
func (r *Reader) Read() (*series.Frame, error) {
	agg := NewAggregator(r.interval, 0)
	for {
		p, err := r.source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		agg.Add(p)
	}
	if f := agg.Flush(); f != nil {
		return f, nil
	}
	return series.Zeros[float64](nil, Columns), nil
}

// Stream returns a channel of frames of up to the batch size intervals each.
// The open interval is flushed when the source ends.
func (r *Reader) Stream(ctx context.Context) (<-chan *series.Frame, error) {
	out := make(chan *series.Frame, 1)
	agg := NewAggregator(r.interval, r.batchSize)
	packets := r.source.Packets()

	go func() {
		defer close(out)
		send := func(f *series.Frame) bool {
			select {
			case out <- f:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-packets:
				if !ok {
					if f := agg.Flush(); f != nil {
						send(f)
					}
					return
				}
				for _, f := range agg.Add(p) {
					if !send(f) {
						return
					}
				}
			}
		}
	}()

	return out, nil
}

// Err implements io.Reader. Packet sources end streams without an error.
func (r *Reader) Err() error {
	return nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}
