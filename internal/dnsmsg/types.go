// Package dnsmsg implements the DNS wire codec: header, question, the
// per-type record tagged union, and whole-packet encode/decode including
// the truncation algorithm used when a response must fit a size budget.
package dnsmsg

// QueryType is DNS's closed type set with an open UNKNOWN fallthrough. Any
// 16-bit value round-trips: QueryType(n) always reports n back via Uint16,
// known or not — the type just additionally knows how to name itself and
// how the codec should shape its RDATA.
type QueryType uint16

const (
	TypeA     QueryType = 1
	TypeNS    QueryType = 2
	TypeCNAME QueryType = 5
	TypeSOA   QueryType = 6
	TypeMX    QueryType = 15
	TypeTXT   QueryType = 16
	TypeAAAA  QueryType = 28
	TypeSRV   QueryType = 33
	TypeOPT   QueryType = 41
)

// Uint16 returns the wire value of the type, known or UNKNOWN.
func (t QueryType) Uint16() uint16 { return uint16(t) }

// Known reports whether t is one of the closed set of fixed-shape types.
func (t QueryType) Known() bool {
	switch t {
	case TypeA, TypeNS, TypeCNAME, TypeSOA, TypeMX, TypeTXT, TypeAAAA, TypeSRV, TypeOPT:
		return true
	default:
		return false
	}
}

func (t QueryType) String() string {
	switch t {
	case TypeA:
		return "A"
	case TypeNS:
		return "NS"
	case TypeCNAME:
		return "CNAME"
	case TypeSOA:
		return "SOA"
	case TypeMX:
		return "MX"
	case TypeTXT:
		return "TXT"
	case TypeAAAA:
		return "AAAA"
	case TypeSRV:
		return "SRV"
	case TypeOPT:
		return "OPT"
	default:
		return "UNKNOWN"
	}
}

// ClassIN is the only class this codec ever writes (and the only one it
// meaningfully interprets on read).
const ClassIN uint16 = 1

// ResultCode is DNS's closed rcode set; values outside it decode as
// NOERROR.
type ResultCode uint8

const (
	NOERROR  ResultCode = 0
	FORMERR  ResultCode = 1
	SERVFAIL ResultCode = 2
	NXDOMAIN ResultCode = 3
	NOTIMP   ResultCode = 4
	REFUSED  ResultCode = 5
)

// ResultCodeFromUint8 decodes a 4-bit wire rcode, defaulting unknown values
// to NOERROR rather than rejecting the packet.
func ResultCodeFromUint8(v uint8) ResultCode {
	switch ResultCode(v) {
	case NOERROR, FORMERR, SERVFAIL, NXDOMAIN, NOTIMP, REFUSED:
		return ResultCode(v)
	default:
		return NOERROR
	}
}

func (r ResultCode) String() string {
	switch r {
	case NOERROR:
		return "NOERROR"
	case FORMERR:
		return "FORMERR"
	case SERVFAIL:
		return "SERVFAIL"
	case NXDOMAIN:
		return "NXDOMAIN"
	case NOTIMP:
		return "NOTIMP"
	case REFUSED:
		return "REFUSED"
	default:
		return "NOERROR"
	}
}
