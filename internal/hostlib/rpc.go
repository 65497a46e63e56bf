package hostlib

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/margarine-lang/marginc/internal/diag"
	"github.com/margarine-lang/marginc/internal/vmrun"
)

const rpcTimeout = 10 * time.Second

// rpcModule exposes a generic unary call-out to a gRPC service. The
// payload crosses the wire as a structpb.Struct built from the JSON the
// bytecode passes, and the response comes back the same way, so no
// per-service codegen is needed on the Margarine side.
//
//	extern fn call(addr: str, method: str, payload: str): str = "rpc::call"
func rpcModule(defaultTarget string) map[string]vmrun.HostFunc {
	return map[string]vmrun.HostFunc{
		"call": func(vm *vmrun.VM, out *vmrun.Reg, status *vmrun.Status) {
			addr, ok := argString(vm, 0, status)
			if !ok {
				return
			}
			method, ok := argString(vm, 1, status)
			if !ok {
				return
			}
			payload, ok := argString(vm, 2, status)
			if !ok {
				return
			}
			if addr == "" {
				addr = defaultTarget
			}
			if addr == "" {
				status.Fault = diag.NewFault(diag.FaultHostReported, "rpc call: no target address")
				return
			}

			var fields map[string]any
			if err := json.Unmarshal([]byte(payload), &fields); err != nil {
				status.Fault = diag.NewFault(diag.FaultHostReported, "rpc call: bad payload: "+err.Error())
				return
			}
			req, err := structpb.NewStruct(fields)
			if err != nil {
				status.Fault = diag.NewFault(diag.FaultHostReported, "rpc call: "+err.Error())
				return
			}

			conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				status.Fault = diag.NewFault(diag.FaultHostReported, "rpc dial: "+err.Error())
				return
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
			defer cancel()

			resp := &structpb.Struct{}
			if err := conn.Invoke(ctx, method, req, resp); err != nil {
				status.Fault = diag.NewFault(diag.FaultHostReported, "rpc invoke: "+err.Error())
				return
			}
			body, err := json.Marshal(resp.AsMap())
			if err != nil {
				status.Fault = diag.NewFault(diag.FaultHostReported, "rpc response: "+err.Error())
				return
			}
			*out = vm.NewString(string(body))
		},
	}
}
