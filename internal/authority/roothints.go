package authority

// rootHintTTL matches the TTL the original root-server seeding used:
// 3600000 seconds, a thousand-hour hint that long outlives any single
// server run.
const rootHintTTL = 3600000

type rootHint struct {
	host string
	addr string
}

// rootHints lists the 13 IANA root server letters with one IPv4 glue
// address each (a through m), mirroring the root zone's own hint file.
var rootHints = []rootHint{
	{"a.root-servers.net.", "198.41.0.4"},
	{"b.root-servers.net.", "199.9.14.201"},
	{"c.root-servers.net.", "192.33.4.12"},
	{"d.root-servers.net.", "199.7.91.13"},
	{"e.root-servers.net.", "192.203.230.10"},
	{"f.root-servers.net.", "192.5.5.241"},
	{"g.root-servers.net.", "192.112.36.4"},
	{"h.root-servers.net.", "198.97.190.53"},
	{"i.root-servers.net.", "192.36.148.17"},
	{"j.root-servers.net.", "192.58.128.30"},
	{"k.root-servers.net.", "193.0.14.129"},
	{"l.root-servers.net.", "199.7.83.42"},
	{"m.root-servers.net.", "202.12.27.33"},
}
