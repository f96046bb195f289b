package server

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "sensevoice.v1.SpeechToText"
	// CodecName is the content-subtype clients must use.
	CodecName = "json"

	streamTranscriptionMethod = "/" + ServiceName + "/StreamTranscription"
)

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals the plain Go message structs of this package.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

// SpeechToTextServer is implemented by Server.
type SpeechToTextServer interface {
	StreamTranscription(TranscriptionServerStream) error
}

// TranscriptionServerStream is the server side of the bidirectional stream.
type TranscriptionServerStream interface {
	Send(*Transcript) error
	Recv() (*StreamTranscriptionRequest, error)
	grpc.ServerStream
}

type transcriptionServerStream struct {
	grpc.ServerStream
}

func (s *transcriptionServerStream) Send(t *Transcript) error {
	return s.ServerStream.SendMsg(t)
}

func (s *transcriptionServerStream) Recv() (*StreamTranscriptionRequest, error) {
	req := new(StreamTranscriptionRequest)
	if err := s.ServerStream.RecvMsg(req); err != nil {
		return nil, err
	}
	return req, nil
}

func streamTranscriptionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(SpeechToTextServer).StreamTranscription(&transcriptionServerStream{stream})
}

// ServiceDesc describes the SpeechToText service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SpeechToTextServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamTranscription",
			Handler:       streamTranscriptionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

// RegisterSpeechToTextServer attaches srv to registrar.
func RegisterSpeechToTextServer(registrar grpc.ServiceRegistrar, srv SpeechToTextServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

// TranscriptionClientStream is the client side of the bidirectional stream.
type TranscriptionClientStream interface {
	Send(*StreamTranscriptionRequest) error
	Recv() (*Transcript, error)
	grpc.ClientStream
}

type transcriptionClientStream struct {
	grpc.ClientStream
}

func (s *transcriptionClientStream) Send(req *StreamTranscriptionRequest) error {
	return s.ClientStream.SendMsg(req)
}

func (s *transcriptionClientStream) Recv() (*Transcript, error) {
	t := new(Transcript)
	if err := s.ClientStream.RecvMsg(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Client calls the SpeechToText service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// StreamTranscription opens a transcription stream using the JSON codec.
func (c *Client) StreamTranscription(ctx context.Context, opts ...grpc.CallOption) (TranscriptionClientStream, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamTranscriptionMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &transcriptionClientStream{stream}, nil
}
