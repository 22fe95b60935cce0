package dnsmsg

import (
	"fmt"
	"net"
	"strings"

	"github.com/dnsscience/dnsscienced/internal/dnserr"
	"github.com/dnsscience/dnsscienced/internal/wire"
)

// Question is a DNS question-section entry. Class is always written as
// ClassIN and ignored on read.
type Question struct {
	Name  string
	Type  QueryType
	Class uint16
}

func decodeQuestion(buf *wire.Buffer) (Question, error) {
	name, err := buf.ReadName()
	if err != nil {
		return Question{}, fmt.Errorf("question name: %w", err)
	}
	qtype, err := buf.ReadUint16()
	if err != nil {
		return Question{}, err
	}
	class, err := buf.ReadUint16()
	if err != nil {
		return Question{}, err
	}
	return Question{Name: name, Type: QueryType(qtype), Class: class}, nil
}

func (q Question) encode(buf *wire.Buffer, names map[string]int) error {
	if err := buf.WriteNameCompressed(q.Name, names); err != nil {
		return err
	}
	if err := buf.WriteUint16(q.Type.Uint16()); err != nil {
		return err
	}
	return buf.WriteUint16(ClassIN)
}

// decodeRecord reads one resource record, dispatching on qtype: fixed-shape
// types read their fields, OPT stores class/ttl as (payload_size, flags),
// UNKNOWN skips data_len bytes. The decoder never panics on a short
// buffer — it returns dnserr.ErrInvalidInput.
func decodeRecord(buf *wire.Buffer) (Record, error) {
	name, err := buf.ReadName()
	if err != nil {
		return nil, fmt.Errorf("rr name: %w", err)
	}
	rawType, err := buf.ReadUint16()
	if err != nil {
		return nil, err
	}
	class, err := buf.ReadUint16()
	if err != nil {
		return nil, err
	}
	ttlOrFlags, err := buf.ReadUint32()
	if err != nil {
		return nil, err
	}
	rdlength, err := buf.ReadUint16()
	if err != nil {
		return nil, err
	}

	rdataStart := buf.Pos()
	qtype := QueryType(rawType)

	var rec Record
	switch qtype {
	case TypeA:
		ip, err := buf.ReadBytes(4)
		if err != nil {
			return nil, fmt.Errorf("A rdata: %w", err)
		}
		rec = &ARecord{rrHeader{name, ttlOrFlags}, net.IP(ip)}

	case TypeAAAA:
		ip, err := buf.ReadBytes(16)
		if err != nil {
			return nil, fmt.Errorf("AAAA rdata: %w", err)
		}
		rec = &AAAARecord{rrHeader{name, ttlOrFlags}, net.IP(ip)}

	case TypeNS:
		host, err := buf.ReadName()
		if err != nil {
			return nil, fmt.Errorf("NS rdata: %w", err)
		}
		rec = &NSRecord{rrHeader{name, ttlOrFlags}, host}

	case TypeCNAME:
		host, err := buf.ReadName()
		if err != nil {
			return nil, fmt.Errorf("CNAME rdata: %w", err)
		}
		rec = &CNAMERecord{rrHeader{name, ttlOrFlags}, host}

	case TypeSOA:
		mname, err := buf.ReadName()
		if err != nil {
			return nil, fmt.Errorf("SOA mname: %w", err)
		}
		rname, err := buf.ReadName()
		if err != nil {
			return nil, fmt.Errorf("SOA rname: %w", err)
		}
		var vals [5]uint32
		for i := range vals {
			if vals[i], err = buf.ReadUint32(); err != nil {
				return nil, fmt.Errorf("SOA field %d: %w", i, err)
			}
		}
		rec = &SOARecord{rrHeader{name, ttlOrFlags}, mname, rname, vals[0], vals[1], vals[2], vals[3], vals[4]}

	case TypeMX:
		priority, err := buf.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("MX priority: %w", err)
		}
		host, err := buf.ReadName()
		if err != nil {
			return nil, fmt.Errorf("MX host: %w", err)
		}
		rec = &MXRecord{rrHeader{name, ttlOrFlags}, priority, host}

	case TypeSRV:
		priority, err := buf.ReadUint16()
		if err != nil {
			return nil, err
		}
		weight, err := buf.ReadUint16()
		if err != nil {
			return nil, err
		}
		port, err := buf.ReadUint16()
		if err != nil {
			return nil, err
		}
		host, err := buf.ReadName()
		if err != nil {
			return nil, fmt.Errorf("SRV host: %w", err)
		}
		rec = &SRVRecord{rrHeader{name, ttlOrFlags}, priority, weight, port, host}

	case TypeTXT:
		if err := buf.Seek(rdataStart); err != nil {
			return nil, err
		}
		end := rdataStart + int(rdlength)
		var text strings.Builder
		for buf.Pos() < end {
			txtLen, err := buf.ReadUint8()
			if err != nil {
				return nil, fmt.Errorf("TXT length: %w", err)
			}
			data, err := buf.ReadBytes(int(txtLen))
			if err != nil {
				return nil, fmt.Errorf("TXT data: %w", err)
			}
			text.Write(data)
		}
		rec = &TXTRecord{rrHeader{name, ttlOrFlags}, text.String()}

	case TypeOPT:
		data, err := buf.ReadBytes(int(rdlength))
		if err != nil {
			return nil, fmt.Errorf("OPT data: %w", err)
		}
		rec = &OPTRecord{rrHeader{name, 0}, class, ttlOrFlags, data}

	default:
		if err := buf.Step(int(rdlength)); err != nil {
			return nil, fmt.Errorf("skip unknown rdata: %w", err)
		}
		rec = &UnknownRecord{rrHeader{name, ttlOrFlags}, rawType, rdlength}
	}

	consumed := buf.Pos() - rdataStart
	if consumed != int(rdlength) && qtype != TypeOPT {
		return nil, fmt.Errorf("rdlength mismatch for %s (declared %d, read %d): %w",
			qtype, rdlength, consumed, dnserr.ErrInvalidInput)
	}

	return rec, nil
}
