// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package remote exposes a query engine over gRPC and provides the matching
// client engine.
//
// The service has a single unary method, /qlnotebook.QueryEngine/CompileAndRun,
// whose request and response are google.protobuf.Struct messages. The
// response carries the results file bytes so the client can store them in
// its own results directory. Requests are authenticated with a bearer token
// in the authorization metadata when the server has one configured.
package remote

import (
	"fmt"

	"qlnotebook/cli/internal/engine"

	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName = "qlnotebook.QueryEngine"
	methodName  = "CompileAndRun"
	fullMethod  = "/" + serviceName + "/" + methodName
)

// Field names of the wire messages.
const (
	fieldSource   = "source"
	fieldDatabase = "database"
	fieldType     = "type"
	fieldMessage  = "message"
	fieldResults  = "results"
)

func encodeQuery(q engine.Query) (*structpb.Struct, error) {
	src := make([]any, len(q.Source))
	for i, s := range q.Source {
		src[i] = s
	}
	return structpb.NewStruct(map[string]any{
		fieldSource:   src,
		fieldDatabase: q.Database,
	})
}

func decodeQuery(s *structpb.Struct) (engine.Query, error) {
	var q engine.Query
	fields := s.GetFields()
	list := fields[fieldSource].GetListValue()
	if list == nil {
		return q, fmt.Errorf("request has no %s list", fieldSource)
	}
	for i, v := range list.GetValues() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return q, fmt.Errorf("%s[%d] is not a string", fieldSource, i)
		}
		q.Source = append(q.Source, sv.StringValue)
	}
	q.Database = fields[fieldDatabase].GetStringValue()
	return q, nil
}

// response is the decoded form of a CompileAndRun reply.
type response struct {
	Type    engine.ResultType
	Message string
	Results []byte
}

func encodeResponse(r response) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		fieldType:    r.Type.String(),
		fieldMessage: r.Message,
		fieldResults: string(r.Results),
	})
}

func decodeResponse(s *structpb.Struct) (response, error) {
	fields := s.GetFields()
	var r response
	switch t := fields[fieldType].GetStringValue(); t {
	case engine.Success.String():
		r.Type = engine.Success
	case engine.Failure.String():
		r.Type = engine.Failure
	default:
		return r, fmt.Errorf("unexpected result type %q", t)
	}
	r.Message = fields[fieldMessage].GetStringValue()
	r.Results = []byte(fields[fieldResults].GetStringValue())
	return r, nil
}
