package puller

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

func elapsedToTime(ns int64) time.Time { return time.Unix(0, ns) }

// pullRequest and pullResponse are the wire messages for the pull RPC,
// carried over grpc using the package's JSON codec (see codec.go).
type pullRequest struct {
	AtomTag  int32                  `json:"atom_tag"`
	Deadline *timestamppb.Timestamp `json:"deadline"`
}

type valueWire struct {
	Tags     []int32 `json:"tags"`
	Position uint8   `json:"position"`
	Kind     uint8   `json:"kind"`
	Int64    int64   `json:"int64,omitempty"`
	Float    float64 `json:"float,omitempty"`
	Str      string  `json:"str,omitempty"`
	Blob     []byte  `json:"blob,omitempty"`
}

type atomWire struct {
	Tag       int32       `json:"tag"`
	SourceUID int64       `json:"source_uid"`
	ElapsedNs int64       `json:"elapsed_ns"`
	Values    []valueWire `json:"values"`
}

type pullResponse struct {
	Atoms []atomWire `json:"atoms"`
}

// GRPCClient is the default Puller implementation of §6: a synchronous
// unary call to a remote pull service, bounded by the caller's deadline.
type GRPCClient struct {
	conn *grpc.ClientConn
}

// Dial creates a client connection to target; each Pull selects the
// package's JSON codec as its content-subtype.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("puller: dial %s: %w", target, err)
	}
	return &GRPCClient{conn: conn}, nil
}

func (c *GRPCClient) Close() error { return c.conn.Close() }

// Pull invokes the remote pull method, translating deadlineNs (elapsed-time
// nanoseconds, matching field.Atom.ElapsedNs) into the request's wall-clock
// Timestamp.
func (c *GRPCClient) Pull(ctx context.Context, tag int32, deadlineNs int64) ([]field.Atom, error) {
	req := &pullRequest{AtomTag: tag, Deadline: timestamppb.New(elapsedToTime(deadlineNs))}
	var resp pullResponse
	callOpt := grpc.CallContentSubtype(codecName)
	if err := c.conn.Invoke(ctx, "/statsd.Puller/Pull", req, &resp, callOpt); err != nil {
		return nil, err
	}
	atoms := make([]field.Atom, 0, len(resp.Atoms))
	for _, aw := range resp.Atoms {
		atoms = append(atoms, atomFromWire(aw))
	}
	return atoms, nil
}

func atomFromWire(aw atomWire) field.Atom {
	values := make([]field.Value, 0, len(aw.Values))
	for _, vw := range aw.Values {
		v := field.Value{
			Path: field.Path{Tags: vw.Tags, Position: field.Position(vw.Position)},
			Kind: field.Kind(vw.Kind),
		}
		switch v.Kind {
		case field.KindInt32:
			v.Int32 = int32(vw.Int64)
		case field.KindInt64:
			v.Int64 = vw.Int64
		case field.KindFloat:
			v.Float = vw.Float
		case field.KindString:
			v.Str = vw.Str
		case field.KindBlob:
			v.Blob = vw.Blob
		}
		values = append(values, v)
	}
	return field.Atom{Tag: aw.Tag, SourceUID: aw.SourceUID, ElapsedNs: aw.ElapsedNs, Values: values}
}
