// Package server implements the core per-query decision logic shared by
// both transports: validate the request, consult the filter, hand off to
// the resolver, and chase any CNAME/SRV targets the resolver didn't already
// resolve inline. It never touches a socket; internal/transport owns I/O
// and dispatch.
package server

import (
	"context"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
	"github.com/dnsscience/dnsscienced/internal/filter"
	"github.com/dnsscience/dnsscienced/internal/resolver"
)

// maxCNAMEDepth bounds the CNAME/SRV follow-through recursion so a
// pathological or cyclical chain of records can't hang a worker.
const maxCNAMEDepth = 10

// Context bundles the collaborators ExecuteQuery needs. It holds no
// connection or transport state, so one Context is shared by every worker
// on both transports.
type Context struct {
	Resolver       resolver.Resolver
	Filter         *filter.Filter
	AllowRecursive bool
}

// ExecuteQuery answers one request. It always returns a well-formed packet
// suitable for sending back to the client, even when the request itself
// was malformed or the resolver failed.
func ExecuteQuery(ctx context.Context, sc *Context, request *dnsmsg.Packet) *dnsmsg.Packet {
	resp := &dnsmsg.Packet{
		Header: dnsmsg.Header{
			ID: request.Header.ID,
			QR: true,
			RA: sc.AllowRecursive,
		},
	}

	if request.Header.RD && !sc.AllowRecursive {
		resp.Header.Rcode = dnsmsg.REFUSED
		return resp
	}
	if len(request.Questions) == 0 {
		resp.Header.Rcode = dnsmsg.FORMERR
		return resp
	}

	question := request.Questions[0]
	resp.Questions = []dnsmsg.Question{question}

	if sc.Filter != nil && sc.Filter.Contains(question.Name) {
		filter.FillBlockedResponse(resp, question.Name)
		return resp
	}

	result, err := sc.Resolver.Resolve(ctx, question.Name, question.Type, request.Header.RD)
	if err != nil {
		resp.Header.Rcode = dnsmsg.SERVFAIL
		return resp
	}

	results := []*dnsmsg.Packet{result}
	followCNAMEs(ctx, sc, followUps(result), &results, 0)

	resp.Header.Rcode = result.Header.Rcode
	for _, r := range results {
		resp.Answers = append(resp.Answers, r.Answers...)
		resp.Authorities = append(resp.Authorities, r.Authorities...)
		resp.Additional = append(resp.Additional, r.Additional...)
	}
	return resp
}

// followUps returns the records in result whose target host gets a
// follow-up A query: every CNAME answer with no matching A answer already
// in the same result, and every SRV answer (SRV targets are not checked
// against the result's A answers).
func followUps(result *dnsmsg.Packet) []dnsmsg.Record {
	var out []dnsmsg.Record
	for _, ans := range result.Answers {
		switch rec := ans.(type) {
		case *dnsmsg.CNAMERecord:
			if hasMatchingA(result.Answers, rec.Host) {
				continue
			}
			out = append(out, rec)
		case *dnsmsg.SRVRecord:
			out = append(out, rec)
		}
	}
	return out
}

func hasMatchingA(answers []dnsmsg.Record, host string) bool {
	for _, ans := range answers {
		if a, ok := ans.(*dnsmsg.ARecord); ok && a.Name() == host {
			return true
		}
	}
	return false
}

// followCNAMEs resolves the host named by each CNAME/SRV record in list,
// appending every successful lookup to results and recursing on whatever
// that lookup's own answers still leave unresolved, up to maxCNAMEDepth.
func followCNAMEs(ctx context.Context, sc *Context, list []dnsmsg.Record, results *[]*dnsmsg.Packet, depth int) {
	if depth > maxCNAMEDepth {
		return
	}

	for _, rec := range list {
		var host string
		switch r := rec.(type) {
		case *dnsmsg.CNAMERecord:
			host = r.Host
		case *dnsmsg.SRVRecord:
			host = r.Host
		default:
			continue
		}

		result, err := sc.Resolver.Resolve(ctx, host, dnsmsg.TypeA, true)
		if err != nil {
			continue
		}
		*results = append(*results, result)
		followCNAMEs(ctx, sc, followUps(result), results, depth+1)
	}
}
