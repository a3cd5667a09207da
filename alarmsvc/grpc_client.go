package alarmsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// codecName mirrors puller's JSON-over-grpc codec (see puller/codec.go);
// registered independently here since alarmsvc and puller are otherwise
// unrelated packages.
const codecName = "statsd-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

func init() { encoding.RegisterCodec(jsonCodec{}) }

func elapsedToTime(ns int64) time.Time { return time.Unix(0, ns) }

type setAlarmRequest struct {
	Handle   string                 `json:"handle"`
	Deadline *timestamppb.Timestamp `json:"deadline"`
}

type cancelAlarmRequest struct {
	Handle string `json:"handle"`
}

type firedAlarm struct {
	Handle     string                 `json:"handle"`
	FiredAtNs  int64                  `json:"fired_at_ns"`
	FiredAt    *timestamppb.Timestamp `json:"fired_at"`
}

// GRPCScheduler is the remote Scheduler implementation of §6's Alarm
// interface: setAlarm/cancelAlarm are unary calls. The client opens no
// stream for fired alarms; each fired notification is handed to
// DeliverFired by the caller.
type GRPCScheduler struct {
	conn *grpc.ClientConn

	mu        sync.Mutex
	callbacks map[string]func(int64)
}

func DialScheduler(ctx context.Context, target string, opts ...grpc.DialOption) (*GRPCScheduler, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("alarmsvc: dial %s: %w", target, err)
	}
	s := &GRPCScheduler{conn: conn, callbacks: map[string]func(int64){}}
	return s, nil
}

func (s *GRPCScheduler) Close() error { return s.conn.Close() }

func (s *GRPCScheduler) SetAlarm(ctx context.Context, handle string, atWallNs int64, onFire func(firedAtNs int64)) error {
	s.mu.Lock()
	s.callbacks[handle] = onFire
	s.mu.Unlock()

	req := &setAlarmRequest{Handle: handle, Deadline: timestamppb.New(elapsedToTime(atWallNs))}
	var resp struct{}
	return s.conn.Invoke(ctx, "/statsd.AlarmScheduler/SetAlarm", req, &resp, grpc.CallContentSubtype(codecName))
}

func (s *GRPCScheduler) CancelAlarm(handle string) {
	s.mu.Lock()
	delete(s.callbacks, handle)
	s.mu.Unlock()

	req := &cancelAlarmRequest{Handle: handle}
	var resp struct{}
	_ = s.conn.Invoke(context.Background(), "/statsd.AlarmScheduler/CancelAlarm", req, &resp, grpc.CallContentSubtype(codecName))
}

// DeliverFired dispatches a fired-alarm notification received out of band
// (e.g. from a streaming RPC loop run by the caller) to the callback
// registered under its handle, then forgets it — mirroring the original's
// "does NOT remove the alarm from the AlarmMonitor" contract by leaving
// that bookkeeping to the caller.
func (s *GRPCScheduler) DeliverFired(f firedAlarm) {
	s.mu.Lock()
	cb, ok := s.callbacks[f.Handle]
	delete(s.callbacks, f.Handle)
	s.mu.Unlock()
	if ok {
		cb(f.FiredAtNs)
	}
}
