package client

import (
	"bytes"
	"encoding/json"

	"github.com/boddenberg/ledger-bfa/internal/domain"
)

// DecodeEnvelope reads a transaction list response. The remote API wraps the
// list as {"data": [...]}; a bare array is accepted too. Anything that is not
// a list is an ErrMalformedResponse. Elements that fail to decode are counted
// in Undecodable and skipped.
func DecodeEnvelope(body []byte) (domain.FetchResult, error) {
	list := bytes.TrimSpace(body)
	if len(list) == 0 || list[0] != '[' {
		var env struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(list, &env); err != nil {
			return domain.FetchResult{}, &domain.ErrMalformedResponse{Service: serviceName, Reason: "body is not a JSON object or array"}
		}
		list = bytes.TrimSpace(env.Data)
	}
	if len(list) == 0 || list[0] != '[' {
		return domain.FetchResult{}, &domain.ErrMalformedResponse{Service: serviceName, Reason: "data is not a list"}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(list, &elems); err != nil {
		return domain.FetchResult{}, &domain.ErrMalformedResponse{Service: serviceName, Reason: err.Error()}
	}

	res := domain.FetchResult{Records: make([]domain.RawTransactionRecord, 0, len(elems))}
	for _, el := range elems {
		var rec domain.RawTransactionRecord
		if err := json.Unmarshal(el, &rec); err != nil {
			res.Undecodable++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}
