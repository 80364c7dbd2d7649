// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package json

import (
	"net/http"

	rpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
)

// NewCodec returns a json2 codec that writes service errors as plain
// strings.
func NewCodec() rpc.Codec {
	return codec{}
}

type codec struct{}

func (codec) NewRequest(r *http.Request) rpc.CodecRequest {
	return request{json2.NewCodec().NewRequest(r)}
}

type request struct {
	rpc.CodecRequest
}

func (r request) WriteError(w http.ResponseWriter, status int, err error) {
	r.CodecRequest.WriteError(w, status, &json2.Error{
		Code:    json2.E_INTERNAL,
		Message: err.Error(),
	})
}
