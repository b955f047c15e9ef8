// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"code.hybscloud.com/xdptx"
	"code.hybscloud.com/xdptx/internal/umem"
)

const payloadLen = 64

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
	srcIP  = net.IPv4(192, 0, 2, 1)
	dstIP  = net.IPv4(192, 0, 2, 2)
)

// Result summarizes one bench run.
type Result struct {
	Packets  uint64
	Duration time.Duration
	Stats    xdptx.TxStats
}

// PPS returns packets per second.
func (r Result) PPS() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Packets) / r.Duration.Seconds()
}

type bench struct {
	cfg    Config
	logger *zap.Logger
	mem    *umem.Umem

	// consumed counts frames the consumer has verified; the producer
	// reuses a frame only after its previous packet is consumed.
	consumed atomix.Uint64

	// failure is the consumer's verification error. Set before the run
	// context is cancelled; read after Executor.Run returns.
	failure error
}

// Run transmits cfg.Packets UDP frames through a loopback ring and verifies
// that they come out complete and in order.
func Run(ctx context.Context, cfg Config, logger *zap.Logger) (res Result, err error) {
	if err := cfg.Validate(); err != nil {
		return res, err
	}

	send, recv := xdptx.NewQueue[xdptx.Descriptor](cfg.QueueCapacity)
	defer recv.Close()
	rx, ring := xdptx.NewRingPair(uint32(cfg.RingSize))

	mem, err := umem.New(send.Cap()+cfg.RingSize+cfg.MaxBatch, cfg.FrameSize)
	if err != nil {
		return res, err
	}
	defer func() { err = multierr.Append(err, mem.Close()) }()

	b := &bench{cfg: cfg, logger: logger, mem: mem}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workSend, workRecv := xdptx.NewWorker()
	tx := xdptx.New(recv, ring).
		Notifier(xdptx.Pair(workSend, xdptx.NoopNotifier{})).
		MaxIterations(cfg.MaxIterations).
		Logger(logger.Named("tx")).
		Build()

	produced := make(chan error, 1)
	go func() { produced <- b.produce(runCtx, send) }()

	var received uint64
	ex := xdptx.NewExecutor(xdptx.WithExecutorLogger(logger.Named("executor")))
	ex.Spawn(tx)
	ex.Spawn(b.consumer(rx, workRecv, &received, cancel))

	t0 := time.Now()
	runErr := ex.Run(runCtx)
	res.Duration = time.Since(t0)
	res.Packets = received
	res.Stats = tx.Stats()

	recv.Close()
	err = b.settle(ctx, runErr, <-produced)
	if err == nil && received != uint64(cfg.Packets) {
		err = fmt.Errorf("received %d packets, expected %d", received, cfg.Packets)
	}
	return res, err
}

// settle combines the executor and producer results. When the consumer
// failed and cancelled the run itself, only its error is reported; the
// cancellation and the producer's shutdown error are consequences of it.
func (b *bench) settle(parent context.Context, runErr, prodErr error) error {
	if b.failure != nil && parent.Err() == nil {
		return b.failure
	}
	return multierr.Append(runErr, prodErr)
}

// produce writes frames into UMEM and enqueues their descriptors in random batches.
func (b *bench) produce(ctx context.Context, send *xdptx.Sender[xdptx.Descriptor]) error {
	defer send.Close()

	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	frames := uint64(b.mem.Frames())
	batch := make([]xdptx.Descriptor, 0, b.cfg.MaxBatch)
	waker := xdptx.NewChanWaker()

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	eth := layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := layers.IPv4{Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP, SrcIP: srcIP, DstIP: dstIP}
	udp := layers.UDP{SrcPort: 9000, DstPort: 9001}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		return err
	}
	payload := make([]byte, payloadLen)

	total := uint64(b.cfg.Packets)
	for seq := uint64(0); seq < total; {
		batch = batch[:0]
		size := 1 + rng.IntN(b.cfg.MaxBatch)
		for ; len(batch) < size && seq < total; seq++ {
			for seq-b.consumed.Load() >= frames {
				if err := ctx.Err(); err != nil {
					return err
				}
				time.Sleep(time.Microsecond)
			}

			addr := b.mem.Address(int(seq % frames))
			frame, err := b.mem.Frame(addr)
			if err != nil {
				return err
			}
			binary.BigEndian.PutUint64(payload, seq)
			if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(payload)); err != nil {
				return err
			}
			n := copy(frame, buf.Bytes())
			batch = append(batch, xdptx.Descriptor{Address: addr}.WithLen(uint32(n)))
		}

		for pending := batch; len(pending) > 0; {
			n, err := send.Extend(pending)
			switch {
			case err == nil:
				pending = pending[n:]
				continue
			case !xdptx.IsWouldBlock(err):
				return err
			}
			if _, err := send.PollAcquire(waker); xdptx.IsWouldBlock(err) {
				select {
				case <-waker:
				case <-ctx.Done():
					return ctx.Err()
				}
			} else if err != nil {
				return err
			}
		}

		if b.cfg.MaxDelay > 0 {
			time.Sleep(rand.N(b.cfg.MaxDelay))
		}
	}
	return nil
}

// consumer returns a task that drains the loopback ring as the worker
// reports transmitted descriptors, and checks each frame's sequence number.
func (b *bench) consumer(rx *xdptx.RxRing, work *xdptx.WorkerReceiver, received *uint64, cancel context.CancelFunc) xdptx.Task {
	var (
		eth     layers.Ethernet
		ip      layers.IPv4
		udp     layers.UDP
		payload gopacket.Payload
		decoded []gopacket.LayerType
	)
	parser := gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &eth, &ip, &udp, &payload)
	parser.IgnoreUnsupported = true
	batch := make([]xdptx.Descriptor, rx.Cap())

	check := func(d xdptx.Descriptor) error {
		frame, err := b.mem.Frame(d.Address)
		if err != nil {
			return err
		}
		if err := parser.DecodeLayers(frame[:d.Len], &decoded); err != nil {
			return fmt.Errorf("packet %d: %w", *received, err)
		}
		if len(decoded) == 0 || decoded[len(decoded)-1] != gopacket.LayerTypePayload || len(payload) < 8 {
			return fmt.Errorf("packet %d: not a UDP frame", *received)
		}
		if seq := binary.BigEndian.Uint64(payload); seq != *received {
			return fmt.Errorf("packet %d: out of order sequence %d", *received, seq)
		}
		*received++
		return nil
	}

	fail := func(err error) error {
		b.failure = err
		cancel()
		return err
	}

	return xdptx.TaskFunc(func(w xdptx.Waker) error {
		for {
			credits, err := work.PollAcquire(w)
			if xdptx.IsClosed(err) {
				return nil
			}
			if err != nil {
				return err
			}

			if avail := rx.Acquire(uint32(credits)); uint64(avail) < credits {
				return fail(fmt.Errorf("worker reported %d descriptors, ring holds %d", credits, avail))
			}
			front, wrap := rx.Data()
			n := xdptx.VectoredCopy([][]xdptx.Descriptor{front, wrap}, [][]xdptx.Descriptor{batch[:credits]})
			for _, d := range batch[:n] {
				if err := check(d); err != nil {
					return fail(err)
				}
			}
			rx.Release(uint32(n))
			work.Finish(uint64(n))
			b.consumed.Store(*received)
		}
	})
}
