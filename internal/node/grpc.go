package node

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lwwdict/internal/lww"
	"lwwdict/internal/wire"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lwwdict.Dictionary"

// DictionaryHandler is the server side of the Dictionary gRPC service.
type DictionaryHandler interface {
	Add(context.Context, *wire.Entry) (*wire.Empty, error)
	Update(context.Context, *wire.Entry) (*wire.Empty, error)
	Remove(context.Context, *wire.RemoveRequest) (*wire.Empty, error)
	Lookup(context.Context, *wire.KeyRequest) (*wire.LookupResponse, error)
	Get(context.Context, *wire.KeyRequest) (*wire.LookupResponse, error)
	State(context.Context, *wire.StateRequest) (*wire.State, error)
	Merge(context.Context, *wire.MergeRequest) (*wire.MergeResponse, error)
}

// DictionaryServer implements DictionaryHandler over a Service.
type DictionaryServer struct {
	svc    Service
	nodeID string
}

// NewDictionaryServer creates a new gRPC server instance.
func NewDictionaryServer(svc Service, nodeID string) *DictionaryServer {
	return &DictionaryServer{
		svc:    svc,
		nodeID: nodeID,
	}
}

// RegisterDictionaryServer registers srv with the gRPC server.
func RegisterDictionaryServer(s grpc.ServiceRegistrar, srv DictionaryHandler) {
	s.RegisterService(&dictionaryServiceDesc, srv)
}

// Add handles Add requests.
func (s *DictionaryServer) Add(ctx context.Context, req *wire.Entry) (*wire.Empty, error) {
	if err := s.svc.Add(ctx, req.Key, req.Record()); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

// Update handles Update requests.
func (s *DictionaryServer) Update(ctx context.Context, req *wire.Entry) (*wire.Empty, error) {
	if err := s.svc.Update(ctx, req.Key, req.Record()); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

// Remove handles Remove requests.
func (s *DictionaryServer) Remove(ctx context.Context, req *wire.RemoveRequest) (*wire.Empty, error) {
	if err := s.svc.Remove(ctx, req.Key, lww.Timestamp(req.Timestamp)); err != nil {
		return nil, toStatus(err)
	}
	return &wire.Empty{}, nil
}

// Lookup handles Lookup requests. Only visibility is returned.
func (s *DictionaryServer) Lookup(ctx context.Context, req *wire.KeyRequest) (*wire.LookupResponse, error) {
	ok, err := s.svc.Lookup(ctx, req.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.LookupResponse{Visible: ok}, nil
}

// Get handles Get requests.
func (s *DictionaryServer) Get(ctx context.Context, req *wire.KeyRequest) (*wire.LookupResponse, error) {
	rec, ok, err := s.svc.Get(ctx, req.Key)
	if err != nil {
		return nil, toStatus(err)
	}
	if !ok {
		return &wire.LookupResponse{}, nil
	}
	return &wire.LookupResponse{
		Visible:   true,
		Payload:   rec.Payload,
		Timestamp: int64(rec.Timestamp),
	}, nil
}

// State returns the full replica state.
func (s *DictionaryServer) State(ctx context.Context, req *wire.StateRequest) (*wire.State, error) {
	d, err := s.svc.State(ctx, req.From)
	if err != nil {
		return nil, toStatus(err)
	}
	return wire.FromDictionary(d, s.nodeID), nil
}

// Merge folds the shipped state into the local replica.
func (s *DictionaryServer) Merge(ctx context.Context, req *wire.MergeRequest) (*wire.MergeResponse, error) {
	d, err := req.State.Dictionary()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	stats, err := s.svc.Merge(ctx, req.From, d, req.Full)
	if err != nil {
		return nil, toStatus(err)
	}
	return &wire.MergeResponse{
		Adds:    int64(stats.Adds),
		Removes: int64(stats.Removes),
	}, nil
}

// ErrorDomain is the domain of the ErrorInfo details attached to
// InvalidArgument statuses.
const ErrorDomain = "lwwdict"

// invalidArgs are the errors reported to clients as InvalidArgument, with
// the ErrorInfo reason that identifies each one.
var invalidArgs = []struct {
	err    error
	reason string
}{
	{ErrEmptyKey, "EMPTY_KEY"},
	{lww.ErrMissingTimestamp, "MISSING_TIMESTAMP"},
	{lww.ErrNegativeTimestamp, "NEGATIVE_TIMESTAMP"},
}

func toStatus(err error) error {
	for _, arg := range invalidArgs {
		if errors.Is(err, arg.err) {
			st := status.New(codes.InvalidArgument, err.Error())
			if withInfo, derr := st.WithDetails(&errdetails.ErrorInfo{
				Reason: arg.reason,
				Domain: ErrorDomain,
			}); derr == nil {
				st = withInfo
			}
			return st.Err()
		}
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, err.Error())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func unary[Req any, PReq interface {
	*Req
	wire.Message
}, Resp wire.Message](name string, call func(DictionaryHandler, context.Context, PReq) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := PReq(new(Req))
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(DictionaryHandler)
			if interceptor == nil {
				return call(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(h, ctx, req.(PReq))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var dictionaryServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DictionaryHandler)(nil),
	Methods: []grpc.MethodDesc{
		unary("Add", DictionaryHandler.Add),
		unary("Update", DictionaryHandler.Update),
		unary("Remove", DictionaryHandler.Remove),
		unary("Lookup", DictionaryHandler.Lookup),
		unary("Get", DictionaryHandler.Get),
		unary("State", DictionaryHandler.State),
		unary("Merge", DictionaryHandler.Merge),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: wire.FileName,
}
