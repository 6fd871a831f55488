package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/turtacn/torsion-fragmenter/pkg/errors"
	types "github.com/turtacn/torsion-fragmenter/pkg/types/fragment"
)

// Client calls fragmenter.v1.Fragmenter with the API's JSON types.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp interface{}, opts ...grpc.CallOption) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return err
	}
	if err := fromStruct(out, resp); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode response")
	}
	return nil
}

func (c *Client) Fragment(ctx context.Context, req *types.FragmentRequest, opts ...grpc.CallOption) (*types.FragmentResponse, error) {
	resp := new(types.FragmentResponse)
	if err := c.invoke(ctx, methodFragment, req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Cut(ctx context.Context, req *types.CutRequest, opts ...grpc.CallOption) (*types.CutResponse, error) {
	resp := new(types.CutResponse)
	if err := c.invoke(ctx, methodCut, req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) GetRun(ctx context.Context, jobID string, opts ...grpc.CallOption) (*types.RunResponse, error) {
	resp := new(types.RunResponse)
	if err := c.invoke(ctx, methodGetRun, map[string]string{"job_id": jobID}, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) ListRuns(ctx context.Context, limit int, opts ...grpc.CallOption) ([]types.RunSummary, error) {
	var resp struct {
		Runs []types.RunSummary `json:"runs"`
	}
	if err := c.invoke(ctx, methodListRuns, map[string]int{"limit": limit}, &resp, opts...); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

func (c *Client) Lineage(ctx context.Context, parentSMILES string, opts ...grpc.CallOption) (*types.LineageResponse, error) {
	resp := new(types.LineageResponse)
	if err := c.invoke(ctx, methodLineage, map[string]string{"smiles": parentSMILES}, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}
