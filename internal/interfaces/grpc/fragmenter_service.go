package grpc

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/interfaces/dto"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fragmenter.v1.Fragmenter"

const (
	methodFragment = "/" + ServiceName + "/Fragment"
	methodCut      = "/" + ServiceName + "/Cut"
	methodGetRun   = "/" + ServiceName + "/GetRun"
	methodListRuns = "/" + ServiceName + "/ListRuns"
	methodLineage  = "/" + ServiceName + "/Lineage"
)

// FragmenterServer is the server side of fragmenter.v1.Fragmenter.
type FragmenterServer interface {
	Fragment(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Cut(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Lineage(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// FragmenterServiceDesc describes the service for grpc.Server.RegisterService.
var FragmenterServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FragmenterServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fragment", Handler: unaryHandler(methodFragment, FragmenterServer.Fragment)},
		{MethodName: "Cut", Handler: unaryHandler(methodCut, FragmenterServer.Cut)},
		{MethodName: "GetRun", Handler: unaryHandler(methodGetRun, FragmenterServer.GetRun)},
		{MethodName: "ListRuns", Handler: unaryHandler(methodListRuns, FragmenterServer.ListRuns)},
		{MethodName: "Lineage", Handler: unaryHandler(methodLineage, FragmenterServer.Lineage)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fragmenter/v1/fragmenter.proto",
}

type structMethod func(FragmenterServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call structMethod) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(FragmenterServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(FragmenterServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// FragmenterService adapts fragmentation.Service to FragmenterServer.
type FragmenterService struct {
	svc      fragmentation.Service
	defaults func() fragmentation.Options
}

// NewFragmenterService wraps svc.  defaults supplies the request options in
// force; nil means fragmentation.DefaultOptions.
func NewFragmenterService(svc fragmentation.Service, defaults func() fragmentation.Options) *FragmenterService {
	if defaults == nil {
		defaults = fragmentation.DefaultOptions
	}
	return &FragmenterService{svc: svc, defaults: defaults}
}

// Register adds the service to s.
func (f *FragmenterService) Register(s *Server) {
	s.RegisterService(&FragmenterServiceDesc, f)
}

func (f *FragmenterService) Fragment(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.FragmentRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if err := dto.ValidateFragmentRequest(&req); err != nil {
		return nil, toStatus(err)
	}
	report, err := f.svc.Generate(ctx, dto.ToInputs(req.Molecules), dto.MergeOptions(f.defaults(), req.Options))
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(dto.FromReport(report))
}

func (f *FragmenterService) Cut(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req types.CutRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if strings.TrimSpace(req.SMILES) == "" {
		return nil, toStatus(errors.New(errors.ErrCodeValidation, "smiles is required"))
	}
	threshold := req.Threshold
	if threshold == 0 {
		threshold = f.defaults().Threshold
	}
	res, err := f.svc.Cut(ctx, fragmentation.Input{Title: req.Title, SMILES: req.SMILES, Weights: req.WBO}, threshold)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(dto.FromCut(res))
}

// GetRun expects {"job_id": "..."}.
func (f *FragmenterService) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	run, err := f.svc.GetRun(ctx, stringField(in, "job_id"))
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(dto.FromRun(run))
}

// ListRuns accepts an optional {"limit": n} and answers {"runs": [...]}.
func (f *FragmenterService) ListRuns(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	limit := 0
	if v, ok := in.GetFields()["limit"]; ok {
		limit = int(v.GetNumberValue())
	}
	runs, err := f.svc.ListRuns(ctx, limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return respond(map[string]interface{}{"runs": dto.Summarize(runs)})
}

// Lineage expects {"smiles": "..."}.
func (f *FragmenterService) Lineage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	parent := stringField(in, "smiles")
	if strings.TrimSpace(parent) == "" {
		return nil, toStatus(errors.New(errors.ErrCodeValidation, "smiles is required"))
	}
	frags, err := f.svc.Lineage(ctx, parent)
	if err != nil {
		return nil, toStatus(err)
	}
	if frags == nil {
		frags = []string{}
	}
	return respond(types.LineageResponse{ParentSMILES: parent, Fragments: frags})
}

func stringField(s *structpb.Struct, key string) string {
	if v, ok := s.GetFields()[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func respond(v interface{}) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		return nil, toStatus(err)
	}
	return out, nil
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode message")
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode message")
	}
	return out, nil
}

// fromStruct decodes a Struct into a JSON-tagged value.
func fromStruct(s *structpb.Struct, v interface{}) error {
	raw, err := s.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request message")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.New(errors.ErrCodeBadRequest, "invalid request message").WithDetail(err.Error())
	}
	return nil
}

// toStatus maps an application error to a gRPC status.  The message is the
// same one the HTTP API would show, prefixed with the error code.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	body := dto.ErrorBody(err, "")
	msg := body.Code + ": " + body.Message
	if body.Detail != "" {
		msg += " (" + body.Detail + ")"
	}
	return status.Error(errors.GRPCCodeForCode(errors.ErrorCode(body.Code)), msg)
}
