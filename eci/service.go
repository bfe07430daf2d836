package eci

import (
	"context"
	"time"

	"nvec-go/bus"
	"nvec-go/errcode"
	"nvec-go/x/conv"
	"nvec-go/x/mathx"
	"nvec-go/x/strx"
	"nvec-go/x/timex"
)

const (
	defaultServiceName = "eci"
	configAwaitTimeout = 200 * time.Millisecond
)

// Service wires a Device onto the message bus: it waits for services/config
// to publish the "config"/"eci" retained settings, brings the device up,
// republishes lifecycle transitions as retained status, and forwards every
// dispatched event onto eci/event/<type>.
type Service struct {
	Name string

	port BusPort
	attn AttentionLine

	dev *Device
}

// NewService constructs a Service around the hardware collaborators a real
// Bus Port adapter provides. Call Start to bring the device up.
func NewService(port BusPort, attn AttentionLine, name string) *Service {
	return &Service{Name: strx.Coalesce(name, defaultServiceName), port: port, attn: attn}
}

// Device returns the underlying Device once Start has brought it up, or nil
// before then.
func (s *Service) Device() *Device { return s.dev }

// Start launches the service in a goroutine. It blocks on nothing; errors
// and lifecycle transitions surface as retained bus messages under
// ["eci","status"].
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	go s.run(ctx, conn)
}

func (s *Service) run(ctx context.Context, conn *bus.Connection) {
	cfg := DefaultConfig()
	if m, ok := awaitConfig(ctx, conn); ok {
		cfg = mergeConfig(cfg, m)
	}

	s.dev = New(s.port, s.attn, cfg)
	s.publishStatus(conn, "probing")

	if err := s.dev.Probe(ctx); err != nil {
		s.publishStatus(conn, "error: "+err.Error())
		return
	}
	s.publishStatus(conn, "ready")

	var hexBuf [8]byte
	conn.Publish(&bus.Message{
		Topic:    bus.T(s.Name, "clock_hz_hex"),
		Payload:  string(conv.U32Hex(hexBuf[:], cfg.ClockHz)),
		Retained: true,
	})

	var decBuf [20]byte
	conn.Publish(&bus.Message{
		Topic:    bus.T(s.Name, "clock_hz"),
		Payload:  string(conv.Utoa(decBuf[:], uint64(cfg.ClockHz))),
		Retained: true,
	})

	go s.watchFramingErrors(ctx, conn)

	remove := s.dev.AddEventListener(-1, func(ev Event) {
		conn.Publish(&bus.Message{
			Topic: bus.T(s.Name, "event", int(ev.Type)),
			Payload: map[string]any{
				"status":  int(ev.Status),
				"payload": append([]byte(nil), ev.Payload...),
				"ts_ms":   timex.NowMs(),
			},
		})
	})
	defer remove()

	<-ctx.Done()
	s.publishStatus(conn, "shutting_down")
	_ = s.dev.Shutdown()
}

// watchFramingErrors polls the device's dropped-packet counter and
// republishes it whenever it grows, tagged with its errcode.Code so a
// subscriber can tell framing errors apart from other fault classes.
func (s *Service) watchFramingErrors(ctx context.Context, conn *bus.Connection) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	var last uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.dev.FramingErrors(); n != last {
				last = n
				conn.Publish(&bus.Message{
					Topic: bus.T(s.Name, "fault", string(errcode.BusError)),
					Payload: map[string]any{
						"count": int(n),
						"ts_ms": timex.NowMs(),
					},
					Retained: true,
				})
			}
		}
	}
}

func (s *Service) publishStatus(conn *bus.Connection, status string) {
	conn.Publish(&bus.Message{
		Topic:    bus.T(s.Name, "status"),
		Payload:  status,
		Retained: true,
	})
}

// awaitConfig subscribes to the retained ["config","eci"] message services/config
// publishes and returns its payload, or ok=false if nothing arrives in time.
func awaitConfig(ctx context.Context, conn *bus.Connection) (map[string]any, bool) {
	sub := conn.Subscribe(bus.T("config", "eci"))
	defer sub.Unsubscribe()

	select {
	case msg := <-sub.Channel():
		if msg == nil {
			return nil, false
		}
		m, ok := msg.Payload.(map[string]any)
		return m, ok
	case <-time.After(configAwaitTimeout):
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// mergeConfig overlays JSON-decoded fields from m onto base, clamping
// caller-supplied retry and timeout values to sane hardware ranges.
func mergeConfig(base Config, m map[string]any) Config {
	if v, ok := numField(m, "address"); ok {
		base.Address = byte(mathx.Clamp(v, 0, 127))
	}
	if v, ok := numField(m, "clock_hz"); ok {
		base.ClockHz = uint32(mathx.Clamp(v, 1000, 1_000_000))
	}
	if v, ok := numField(m, "delay_count"); ok {
		base.DelayCount = uint32(mathx.Clamp(v, 0, 1000))
	}
	if v, ok := numField(m, "timeout_ms"); ok {
		ms := mathx.Clamp(v, 1, 1000)
		base.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := numField(m, "max_retries"); ok {
		base.MaxRetries = int(mathx.Clamp(v, 1, 64))
	}
	return base
}

func numField(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
