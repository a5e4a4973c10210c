// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"enhancer/internal/analysis"
	applog "enhancer/internal/log"
)

// SnapshotProvider is the read side of the analysis loop.
type SnapshotProvider interface {
	Latest() (analysis.Snapshot, bool)
}

/*
Publisher periodically fetches the latest analysis snapshot, packs it
into a binary packet and sends it over UDP for external level meters.

Packet layout (BigEndian):

	| Field         | Type      | Bytes |
	|---------------|-----------|-------|
	| Sequence      | uint32    | 4     |
	| Timestamp     | int64     | 8     | nanoseconds since epoch
	| Quality       | uint8     | 1     | 0=low 1=medium 2=high 3=original
	| DynamicRange  | float32   | 4     |
	| NoiseLevel    | float32   | 4     |
	| Bin count (N) | uint16    | 2     |
	| Spectrum      | []float32 | N*4   |
*/
type Publisher struct {
	sender   *Sender
	provider SnapshotProvider
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	sequenceNum uint32

	// Reusable buffers to keep the per-packet allocation flat.
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a Publisher. An interval <= 0 defaults to the
// analysis cadence; publishing faster than the loop ticks only repeats
// snapshots.
func NewPublisher(interval time.Duration, sender *Sender, provider SnapshotProvider) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp: sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("udp: snapshot provider cannot be nil")
	}
	if interval <= 0 {
		interval = analysis.DefaultInterval
	}

	return &Publisher{
		sender:       sender,
		provider:     provider,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins periodic publishing. Safe to call multiple times; a
// running publisher ignores subsequent starts.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDP: publisher already running")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("UDP: publisher started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
// Safe to call multiple times.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

func (p *Publisher) buildAndSendPacket() {
	snap, ok := p.provider.Latest()
	if !ok {
		return // no tick yet
	}

	if cap(p.f32Buffer) < len(snap.Spectrum) {
		p.f32Buffer = make([]float32, len(snap.Spectrum))
	}
	p.f32Buffer = p.f32Buffer[:len(snap.Spectrum)]
	for i, v := range snap.Spectrum {
		p.f32Buffer[i] = float32(v)
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, time.Now().UnixNano())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, qualityCode(snap.Quality))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(snap.DynamicRange))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(snap.NoiseLevel))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(p.f32Buffer)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer)
	}
	if err != nil {
		applog.Errorf("UDP: packing snapshot failed: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		applog.Debugf("UDP: send failed: %v", err)
		return
	}
	applog.Debugf("UDP: sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
}

func qualityCode(q analysis.Quality) uint8 {
	switch q {
	case analysis.QualityMedium:
		return 1
	case analysis.QualityHigh:
		return 2
	case analysis.QualityOriginal:
		return 3
	default:
		return 0
	}
}

// Close implements io.Closer by stopping the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}
