// Package filter implements the predicate grammar from spec §4.6: a small
// boolean expression language evaluated once per event variant, used by the
// reader (cmd/netmon-read) to skip events at replay time.
package filter

import "strings"

// identifier names one of the fields an expression can test. The set and
// the names below mirror guidoreina/netmon's net::mon::event::grammar
// identifier enum and its from_string table.
type identifier int

const (
	identDate identifier = iota
	identEventType
	identSourceIP
	identSourceHostname
	identSourcePort
	identDestinationIP
	identDestinationHostname
	identDestinationPort
	identIP
	identHostname
	identPort
	identICMPType
	identICMPCode
	identTransferred
	identQueryType
	identDomain
	identNumberDNSResponses
	identDNSResponse
	identPayload
	identCreation
	identDuration
	identTransferredClient
	identTransferredServer
)

var identifierNames = map[string]identifier{
	"date":                   identDate,
	"event_type":             identEventType,
	"source_ip":              identSourceIP,
	"source_hostname":        identSourceHostname,
	"source_port":            identSourcePort,
	"destination_ip":         identDestinationIP,
	"destination_hostname":   identDestinationHostname,
	"destination_port":       identDestinationPort,
	"ip":                     identIP,
	"hostname":               identHostname,
	"port":                   identPort,
	"icmp_type":              identICMPType,
	"icmp_code":              identICMPCode,
	"transferred":            identTransferred,
	"query_type":             identQueryType,
	"domain":               identDomain,
	"number_dns_responses": identNumberDNSResponses,
	"dns_response":         identDNSResponse,
	"payload":              identPayload,
	"creation":             identCreation,
	"duration":             identDuration,
	"transferred_client":   identTransferredClient,
	"transferred_server":   identTransferredServer,
}

func parseIdentifier(s string) (identifier, bool) {
	id, ok := identifierNames[strings.ToLower(s)]
	return id, ok
}

func (id identifier) String() string {
	for name, v := range identifierNames {
		if v == id {
			return name
		}
	}
	return "(unknown)"
}
