package zone

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
)

// DNSZoneFile is the structure of a .dnszone YAML zone definition.
type DNSZoneFile struct {
	Zone      ZoneSection              `yaml:"zone"`
	SOA       SOASection               `yaml:"soa"`
	Records   map[string]RecordSection `yaml:"records"`
	Templates map[string]TemplateSection `yaml:"templates,omitempty"`
	Apply     []ApplySection           `yaml:"apply,omitempty"`
}

type ZoneSection struct {
	Name    string `yaml:"name"`
	TTL     string `yaml:"ttl,omitempty"`
	Comment string `yaml:"comment,omitempty"`
}

type SOASection struct {
	PrimaryNS   string `yaml:"primary_ns"`
	Contact     string `yaml:"contact"`
	Serial      string `yaml:"serial"` // "auto" or a number
	Refresh     string `yaml:"refresh"`
	Retry       string `yaml:"retry"`
	Expire      string `yaml:"expire"`
	NegativeTTL string `yaml:"negative_ttl"`
}

// RecordSection holds the record set for one owner name.
type RecordSection struct {
	A     interface{} `yaml:"A,omitempty"`
	AAAA  interface{} `yaml:"AAAA,omitempty"`
	CNAME string      `yaml:"CNAME,omitempty"`
	MX    interface{} `yaml:"MX,omitempty"`
	NS    interface{} `yaml:"NS,omitempty"`
	TXT   interface{} `yaml:"TXT,omitempty"`
	SRV   interface{} `yaml:"SRV,omitempty"`

	TTL     int    `yaml:"ttl,omitempty"`
	Comment string `yaml:"comment,omitempty"`
}

type MXRecordSpec struct {
	Priority int    `yaml:"priority"`
	Target   string `yaml:"target"`
}

type SRVRecordSpec struct {
	Priority int    `yaml:"priority"`
	Weight   int    `yaml:"weight"`
	Port     int    `yaml:"port"`
	Target   string `yaml:"target"`
}

type TemplateSection map[string]interface{}

type ApplySection struct {
	Template string                   `yaml:"template"`
	To       []map[string]interface{} `yaml:"to"`
}

// ParseDNSZone loads a .dnszone YAML file into a Zone.
func ParseDNSZone(filename string, cfg Config) (*Zone, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var zf DNSZoneFile
	if err := yaml.Unmarshal(data, &zf); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	z := New(zf.Zone.Name)

	defaultTTL := cfg.DefaultTTL
	if zf.Zone.TTL != "" {
		if ttl, err := parseDuration(zf.Zone.TTL); err == nil {
			defaultTTL = uint32(ttl.Seconds())
		}
	}

	soa, err := parseSOA(&zf, z.Origin, defaultTTL)
	if err != nil {
		return nil, fmt.Errorf("parse SOA: %w", err)
	}
	z.AddRecord(soa)

	for owner, section := range zf.Records {
		recordTTL := defaultTTL
		if section.TTL > 0 {
			recordTTL = uint32(section.TTL)
		}
		fqdnOwner := z.fullyQualify(owner)

		if err := addARecords(z, fqdnOwner, section.A, recordTTL); err != nil {
			return nil, fmt.Errorf("parse A records for %s: %w", owner, err)
		}
		if err := addAAAARecords(z, fqdnOwner, section.AAAA, recordTTL); err != nil {
			return nil, fmt.Errorf("parse AAAA records for %s: %w", owner, err)
		}
		if section.CNAME != "" {
			z.AddRecord(dnsmsg.NewCNAME(fqdnOwner, recordTTL, fqdn(section.CNAME)))
		}
		if err := addMXRecords(z, fqdnOwner, section.MX, recordTTL); err != nil {
			return nil, fmt.Errorf("parse MX records for %s: %w", owner, err)
		}
		if err := addNSRecords(z, fqdnOwner, section.NS, recordTTL); err != nil {
			return nil, fmt.Errorf("parse NS records for %s: %w", owner, err)
		}
		if err := addTXTRecords(z, fqdnOwner, section.TXT, recordTTL); err != nil {
			return nil, fmt.Errorf("parse TXT records for %s: %w", owner, err)
		}
		if err := addSRVRecords(z, fqdnOwner, section.SRV, recordTTL); err != nil {
			return nil, fmt.Errorf("parse SRV records for %s: %w", owner, err)
		}
	}

	if cfg.Strict {
		if err := z.Validate(); err != nil {
			return nil, fmt.Errorf("validation failed: %w", err)
		}
	}

	return z, nil
}

func parseSOA(zf *DNSZoneFile, origin string, defaultTTL uint32) (*dnsmsg.SOARecord, error) {
	var serial uint64
	if zf.SOA.Serial == "auto" {
		fmt.Sscanf(time.Now().Format("20060102")+"00", "%d", &serial)
	} else {
		fmt.Sscanf(zf.SOA.Serial, "%d", &serial)
	}

	refresh, err := parseTime(zf.SOA.Refresh)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh: %w", err)
	}
	retry, err := parseTime(zf.SOA.Retry)
	if err != nil {
		return nil, fmt.Errorf("invalid retry: %w", err)
	}
	expire, err := parseTime(zf.SOA.Expire)
	if err != nil {
		return nil, fmt.Errorf("invalid expire: %w", err)
	}
	minimum, err := parseTime(zf.SOA.NegativeTTL)
	if err != nil {
		return nil, fmt.Errorf("invalid negative_ttl: %w", err)
	}

	return dnsmsg.NewSOA(origin, defaultTTL, fqdn(zf.SOA.PrimaryNS), formatEmailAddress(zf.SOA.Contact),
		uint32(serial), refresh, retry, expire, minimum), nil
}

func addARecords(z *Zone, owner string, data interface{}, ttl uint32) error {
	ips, err := stringList(data, "A")
	if err != nil {
		return err
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("invalid IPv4 address: %s", ipStr)
		}
		z.AddRecord(dnsmsg.NewA(owner, ttl, ip))
	}
	return nil
}

func addAAAARecords(z *Zone, owner string, data interface{}, ttl uint32) error {
	ips, err := stringList(data, "AAAA")
	if err != nil {
		return err
	}
	for _, ipStr := range ips {
		ip := net.ParseIP(ipStr)
		if ip == nil || ip.To16() == nil {
			return fmt.Errorf("invalid IPv6 address: %s", ipStr)
		}
		z.AddRecord(dnsmsg.NewAAAA(owner, ttl, ip))
	}
	return nil
}

func addNSRecords(z *Zone, owner string, data interface{}, ttl uint32) error {
	hosts, err := stringList(data, "NS")
	if err != nil {
		return err
	}
	for _, h := range hosts {
		z.AddRecord(dnsmsg.NewNS(owner, ttl, fqdn(h)))
	}
	return nil
}

func addTXTRecords(z *Zone, owner string, data interface{}, ttl uint32) error {
	texts, err := stringList(data, "TXT")
	if err != nil {
		return err
	}
	for _, t := range texts {
		rec := &dnsmsg.TXTRecord{Data: t}
		rec.SetName(owner)
		rec.SetTTL(ttl)
		z.AddRecord(rec)
	}
	return nil
}

func addMXRecords(z *Zone, owner string, data interface{}, ttl uint32) error {
	items, ok := data.([]interface{})
	if !ok {
		if data == nil {
			return nil
		}
		return fmt.Errorf("invalid MX record format")
	}
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		spec := MXRecordSpec{}
		if p, ok := m["priority"].(int); ok {
			spec.Priority = p
		}
		if tgt, ok := m["target"].(string); ok {
			spec.Target = tgt
		}
		rec := &dnsmsg.MXRecord{Priority: uint16(spec.Priority), Host: fqdn(spec.Target)}
		rec.SetName(owner)
		rec.SetTTL(ttl)
		z.AddRecord(rec)
	}
	return nil
}

func addSRVRecords(z *Zone, owner string, data interface{}, ttl uint32) error {
	items, ok := data.([]interface{})
	if !ok {
		if data == nil {
			return nil
		}
		return fmt.Errorf("invalid SRV record format")
	}
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		spec := SRVRecordSpec{}
		if p, ok := m["priority"].(int); ok {
			spec.Priority = p
		}
		if w, ok := m["weight"].(int); ok {
			spec.Weight = w
		}
		if port, ok := m["port"].(int); ok {
			spec.Port = port
		}
		if tgt, ok := m["target"].(string); ok {
			spec.Target = tgt
		}
		rec := &dnsmsg.SRVRecord{
			Priority: uint16(spec.Priority),
			Weight:   uint16(spec.Weight),
			Port:     uint16(spec.Port),
			Host:     fqdn(spec.Target),
		}
		rec.SetName(owner)
		rec.SetTTL(ttl)
		z.AddRecord(rec)
	}
	return nil
}

func stringList(data interface{}, field string) ([]string, error) {
	if data == nil {
		return nil, nil
	}
	switch v := data.(type) {
	case string:
		return []string{v}, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("invalid %s record format", field)
	}
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	if strings.HasSuffix(s, "w") {
		weeks, err := strconv.Atoi(strings.TrimSuffix(s, "w"))
		if err != nil {
			return 0, err
		}
		return time.Duration(weeks) * 7 * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

func parseTime(s string) (uint32, error) {
	if d, err := parseDuration(s); err == nil {
		return uint32(d.Seconds()), nil
	}
	var seconds uint64
	if _, err := fmt.Sscanf(s, "%d", &seconds); err == nil {
		return uint32(seconds), nil
	}
	return 0, fmt.Errorf("invalid time format: %s", s)
}

func formatEmailAddress(email string) string {
	return fqdn(strings.ReplaceAll(email, "@", "."))
}
