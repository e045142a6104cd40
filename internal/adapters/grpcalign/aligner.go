// Package grpcalign talks to a forced-alignment sidecar over gRPC. Messages
// are google.protobuf.Struct so no generated stubs are needed.
package grpcalign

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"videothingy/assembly-engine/internal/errs"
	"videothingy/assembly-engine/internal/models"
	"videothingy/assembly-engine/internal/ports"
)

const (
	serviceName = "aligner.v1.Aligner"
	alignMethod = "/" + serviceName + "/Align"
)

// Client implements ports.Aligner against a remote aligner.
type Client struct {
	conn   *grpc.ClientConn
	format string
}

// Dial connects to addr without TLS; the sidecar is expected on a private
// network.
func Dial(addr, format string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("did not connect to aligner: %w", err)
	}
	return &Client{conn: conn, format: format}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Align sends the clip and decodes the word list.
func (c *Client) Align(ctx context.Context, audio []byte) ([]models.WordTimestamp, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"audio_b64": base64.StdEncoding.EncodeToString(audio),
		"format":    c.format,
	})
	if err != nil {
		return nil, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, alignMethod, req, resp); err != nil {
		return nil, classify(err)
	}
	return decodeWords(resp)
}

func classify(err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return errs.Transient("align", err)
	case codes.Canceled:
		return context.Canceled
	}
	return fmt.Errorf("align: %w", err)
}

func decodeWords(resp *structpb.Struct) ([]models.WordTimestamp, error) {
	list := resp.GetFields()["words"].GetListValue()
	if list == nil {
		return nil, errs.Structural("aligner response has no words list")
	}
	out := make([]models.WordTimestamp, 0, len(list.GetValues()))
	for i, v := range list.GetValues() {
		f := v.GetStructValue().GetFields()
		if f == nil {
			return nil, errs.Structural(fmt.Sprintf("aligner word %d is not an object", i))
		}
		conf := 1.0
		if c, ok := f["confidence"]; ok {
			conf = c.GetNumberValue()
		}
		out = append(out, models.WordTimestamp{
			Word:       f["word"].GetStringValue(),
			Start:      f["start"].GetNumberValue(),
			End:        f["end"].GetNumberValue(),
			Confidence: conf,
		})
	}
	return out, nil
}

func encodeWords(words []models.WordTimestamp) (*structpb.Struct, error) {
	list := make([]interface{}, len(words))
	for i, w := range words {
		list[i] = map[string]interface{}{
			"word":       w.Word,
			"start":      w.Start,
			"end":        w.End,
			"confidence": w.Confidence,
		}
	}
	return structpb.NewStruct(map[string]interface{}{"words": list})
}

// Register serves aligner on s under the same method name the client calls.
// It lets any ports.Aligner run as the sidecar.
func Register(s *grpc.Server, aligner ports.Aligner) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Align",
			Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				req := &structpb.Struct{}
				if err := dec(req); err != nil {
					return nil, err
				}
				handle := func(ctx context.Context, r interface{}) (interface{}, error) {
					return serveAlign(ctx, aligner, r.(*structpb.Struct))
				}
				if interceptor == nil {
					return handle(ctx, req)
				}
				return interceptor(ctx, req, &grpc.UnaryServerInfo{FullMethod: alignMethod}, handle)
			},
		}},
		Streams: []grpc.StreamDesc{},
	}, struct{}{})
}

func serveAlign(ctx context.Context, aligner ports.Aligner, req *structpb.Struct) (*structpb.Struct, error) {
	audio, err := base64.StdEncoding.DecodeString(req.GetFields()["audio_b64"].GetStringValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "audio_b64: %v", err)
	}
	words, err := aligner.Align(ctx, audio)
	if err != nil {
		if errs.IsTransient(err) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	return encodeWords(words)
}
