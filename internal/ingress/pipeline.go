// Package ingress implements the Sparkplug ingress component:
// MQTT frame decode, topology update, historian writes, property upsert,
// alarm evaluation, and hot-cache/pub-sub fan-out.
//
// Ordering is enforced with a keyed dispatcher: HandleMessage hashes each
// frame's (group, node, device) onto a fixed pool of worker goroutines, so
// every frame touching one edge node or device is processed by the same
// goroutine — and therefore in receive order — while different nodes
// progress concurrently.
package ingress

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/joyautomation/mantle/internal/alarm"
	"github.com/joyautomation/mantle/internal/batching"
	"github.com/joyautomation/mantle/internal/eventbus"
	"github.com/joyautomation/mantle/internal/hotcache"
	"github.com/joyautomation/mantle/internal/metrics"
	"github.com/joyautomation/mantle/internal/mqttclient"
	"github.com/joyautomation/mantle/internal/properties"
	"github.com/joyautomation/mantle/internal/sparkplug"
	"github.com/joyautomation/mantle/internal/storage"
	"github.com/joyautomation/mantle/internal/topology"
)

const (
	numWorkers       = 8
	workerQueueSize  = 256
	historyBatchSize = 200
	historyBatchTime = 2 * time.Second
	propBatchSize    = 100
	propBatchTime    = 2 * time.Second
)

// Pipeline bundles every component the ingress path touches. One
// Pipeline per process.
type Pipeline struct {
	Store      *storage.Store
	Host       *topology.Host
	Hot        *hotcache.Cache // nil if the hot cache is not configured
	Properties *properties.Store
	Alarms     *alarm.Engine
	Bus        *eventbus.Bus
	MQTT       *mqttclient.Client

	Historian bool
	log       zerolog.Logger

	historyBatcher *batching.Batcher[storage.Sample]
	propBatcher    *batching.Batcher[storage.PropertySample]

	workers []chan frame

	aliases aliasTable
	cmdSeq  nodeSeq

	msgCount      atomic.Int64
	handlerMu     sync.Mutex
	handlerCounts map[sparkplug.MessageClass]int64
}

// frame is one MQTT message queued to a worker, topic already parsed.
type frame struct {
	topic   sparkplug.Topic
	payload []byte
}

// Options configures NewPipeline.
type Options struct {
	Store      *storage.Store
	Host       *topology.Host
	Hot        *hotcache.Cache
	Properties *properties.Store
	Alarms     *alarm.Engine
	Bus        *eventbus.Bus
	MQTT       *mqttclient.Client
	Historian  bool
	Log        zerolog.Logger
}

func NewPipeline(opts Options) *Pipeline {
	p := &Pipeline{
		Store:         opts.Store,
		Host:          opts.Host,
		Hot:           opts.Hot,
		Properties:    opts.Properties,
		Alarms:        opts.Alarms,
		Bus:           opts.Bus,
		MQTT:          opts.MQTT,
		Historian:     opts.Historian,
		log:           opts.Log,
		aliases:       newAliasTable(),
		cmdSeq:        newNodeSeq(),
		handlerCounts: make(map[sparkplug.MessageClass]int64),
	}

	p.historyBatcher = batching.New(historyBatchSize, historyBatchTime, p.flushHistory)
	p.propBatcher = batching.New(propBatchSize, propBatchTime, p.flushProperties)

	return p
}

// Start launches the worker pool. Each worker processes its queue until
// ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	p.workers = make([]chan frame, numWorkers)
	for i := range p.workers {
		ch := make(chan frame, workerQueueSize)
		p.workers[i] = ch
		go p.runWorker(ctx, ch)
	}
}

func (p *Pipeline) runWorker(ctx context.Context, ch chan frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-ch:
			p.process(ctx, f.topic, f.payload)
		}
	}
}

// HandleMessage is the MQTT client's message callback.
// It parses just enough of the topic to route the frame to its worker,
// then enqueues; decoding itself happens on the worker goroutine.
func (p *Pipeline) HandleMessage(topic string, payload []byte) {
	p.msgCount.Add(1)
	metrics.MQTTMessagesTotal.Inc()

	top, err := sparkplug.ParseTopic(topic)
	if err != nil {
		p.log.Warn().Err(err).Str("topic", topic).Msg("ingress: unparseable topic, dropping")
		return
	}

	p.handlerMu.Lock()
	p.handlerCounts[top.Class]++
	p.handlerMu.Unlock()
	metrics.MQTTHandlerMessagesTotal.WithLabelValues(string(top.Class)).Inc()

	idx := workerIndex(top.Group, top.Node, top.Device)
	select {
	case p.workers[idx] <- frame{topic: top, payload: payload}:
	default:
		p.log.Warn().Str("topic", topic).Msg("ingress: worker queue full, dropping frame")
	}
}

func workerIndex(group, node, device string) int {
	h := fnv.New32a()
	h.Write([]byte(group))
	h.Write([]byte{'|'})
	h.Write([]byte(node))
	h.Write([]byte{'|'})
	h.Write([]byte(device))
	return int(h.Sum32() % numWorkers)
}

// MsgCount reports total frames received, for the metrics collector.
func (p *Pipeline) MsgCount() int64 { return p.msgCount.Load() }

// HandlerCounts reports frames received per topic class.
func (p *Pipeline) HandlerCounts() map[string]int64 {
	p.handlerMu.Lock()
	defer p.handlerMu.Unlock()
	out := make(map[string]int64, len(p.handlerCounts))
	for k, v := range p.handlerCounts {
		out[string(k)] = v
	}
	return out
}

// Stop drains the batchers so no buffered sample or property row is lost.
func (p *Pipeline) Stop() {
	p.historyBatcher.Stop()
	p.propBatcher.Stop()
}

func (p *Pipeline) flushHistory(samples []storage.Sample) {
	ctx := context.Background()
	if err := p.Store.RecordSamplesBatch(ctx, samples); err != nil {
		p.log.Warn().Err(err).Int("count", len(samples)).Msg("ingress: history batch insert failed")
	}
}

func (p *Pipeline) flushProperties(rows []storage.PropertySample) {
	ctx := context.Background()
	for _, row := range rows {
		if err := p.Store.RecordProperty(ctx, row); err != nil {
			p.log.Warn().Err(err).Msg("ingress: property history row insert failed")
		}
	}
}
