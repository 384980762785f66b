// dns.go — доменные структуры результата анализа DNS.
// Сводка по домену: текущие записи, историческая таблица, список поддоменов.
package model

import "regexp"

// RecordType — тип DNS-записи, поддерживаемый анализом.
type RecordType string

// Поддерживаемые типы DNS-записей.
const (
	RecordTypeA    RecordType = "a"
	RecordTypeAAAA RecordType = "aaaa"
	RecordTypeMX   RecordType = "mx"
	RecordTypeNS   RecordType = "ns"
	RecordTypeSOA  RecordType = "soa"
	RecordTypeTXT  RecordType = "txt"
)

// SupportedRecordTypes — порядок обхода исторических записей при анализе.
var SupportedRecordTypes = []RecordType{
	RecordTypeA, RecordTypeAAAA, RecordTypeMX,
	RecordTypeNS, RecordTypeSOA, RecordTypeTXT,
}

// ARecord — запись A (IPv4).
type ARecord struct {
	IP           string  `json:"ip"`
	Count        int     `json:"count"`
	Organization *string `json:"organization"`
}

// AAAARecord — запись AAAA (IPv6).
type AAAARecord struct {
	IPv6         string  `json:"ipv6"`
	Count        int     `json:"count"`
	Organization *string `json:"organization"`
}

// MXRecord — запись MX (почтовый сервер).
type MXRecord struct {
	Priority     int     `json:"priority"`
	Host         string  `json:"host"`
	Count        int     `json:"count"`
	Organization *string `json:"organization"`
}

// NSRecord — запись NS (nameserver).
type NSRecord struct {
	Nameserver   string  `json:"nameserver"`
	Count        int     `json:"count"`
	Organization *string `json:"organization"`
}

// SOARecord — запись SOA.
type SOARecord struct {
	TTL   int    `json:"ttl"`
	Email string `json:"email"`
	Count int    `json:"count"`
}

// TXTRecord — запись TXT.
type TXTRecord struct {
	Value string `json:"value"`
}

// RecordRow — набор значений одного типа записи с временем первого наблюдения.
type RecordRow[T any] struct {
	FirstSeen string `json:"first_seen"`
	Values    []T    `json:"values"`
}

// DNSTable — таблица DNS-записей домена (текущая или историческая).
type DNSTable struct {
	A    []RecordRow[ARecord]    `json:"a,omitempty"`
	AAAA []RecordRow[AAAARecord] `json:"aaaa,omitempty"`
	MX   []RecordRow[MXRecord]   `json:"mx,omitempty"`
	NS   []RecordRow[NSRecord]   `json:"ns,omitempty"`
	SOA  []RecordRow[SOARecord]  `json:"soa,omitempty"`
	TXT  []RecordRow[TXTRecord]  `json:"txt,omitempty"`
}

// DomainSummary — итоговая сводка анализа домена.
type DomainSummary struct {
	Hostname   string   `json:"hostname"`
	Current    DNSTable `json:"current"`
	History    DNSTable `json:"history"`
	Subdomains []string `json:"subdomains"`
}

// rootDomainRegex — корневой домен вида example.com (без поддоменов и схем).
var rootDomainRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{1,61}[a-zA-Z0-9]\.[a-zA-Z]{2,}$`)

// IsRootDomain проверяет, является ли строка корневым доменом.
func IsRootDomain(domain string) bool {
	return rootDomainRegex.MatchString(domain)
}
