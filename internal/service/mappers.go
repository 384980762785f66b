package service

import (
	"github.com/domainguard/gateway/internal/domain/model"
	"github.com/domainguard/gateway/internal/securitytrails"
)

// Маппинг ответов SecurityTrails в доменные DNS-таблицы.

func mapARecord(v securitytrails.RecordValue) model.ARecord {
	return model.ARecord{IP: v.IP, Count: v.IPCount, Organization: v.IPOrganization}
}

func mapAAAARecord(v securitytrails.RecordValue) model.AAAARecord {
	return model.AAAARecord{IPv6: v.IPv6, Count: v.IPv6Count, Organization: v.IPv6Organization}
}

func mapMXRecord(v securitytrails.RecordValue) model.MXRecord {
	return model.MXRecord{
		Priority:     v.Priority,
		Host:         v.Host,
		Count:        v.HostCount,
		Organization: v.HostnameOrganization,
	}
}

func mapNSRecord(v securitytrails.RecordValue) model.NSRecord {
	return model.NSRecord{
		Nameserver:   v.Nameserver,
		Count:        v.NameserverCount,
		Organization: v.NameserverOrganization,
	}
}

func mapSOARecord(v securitytrails.RecordValue) model.SOARecord {
	return model.SOARecord{TTL: v.TTL, Email: v.Email, Count: v.EmailCount}
}

func mapTXTRecord(v securitytrails.RecordValue) model.TXTRecord {
	return model.TXTRecord{Value: v.Value}
}

// mapValues переводит значения записи провайдера в доменные значения.
func mapValues[T any](values securitytrails.RecordValues, mapOne func(securitytrails.RecordValue) T) []T {
	if len(values) == 0 {
		return nil
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		out = append(out, mapOne(v))
	}
	return out
}

// currentRow строит единственную строку текущей таблицы из блока записи.
func currentRow[T any](block *securitytrails.RecordBlock, mapOne func(securitytrails.RecordValue) T) []model.RecordRow[T] {
	if block == nil {
		return nil
	}
	return []model.RecordRow[T]{{
		FirstSeen: block.FirstSeen,
		Values:    mapValues(block.Values, mapOne),
	}}
}

// historyRows строит строки исторической таблицы: по строке на каждый
// временной срез провайдера.
func historyRows[T any](data *securitytrails.HistoryData, mapOne func(securitytrails.RecordValue) T) []model.RecordRow[T] {
	if data == nil || len(data.Records) == 0 {
		return nil
	}
	rows := make([]model.RecordRow[T], 0, len(data.Records))
	for _, block := range data.Records {
		rows = append(rows, model.RecordRow[T]{
			FirstSeen: block.FirstSeen,
			Values:    mapValues(block.Values, mapOne),
		})
	}
	return rows
}

// mapCurrentDNS переводит текущие записи домена в доменную таблицу.
func mapCurrentDNS(data *securitytrails.DomainData) model.DNSTable {
	dns := data.CurrentDNS
	return model.DNSTable{
		A:    currentRow(dns.A, mapARecord),
		AAAA: currentRow(dns.AAAA, mapAAAARecord),
		MX:   currentRow(dns.MX, mapMXRecord),
		NS:   currentRow(dns.NS, mapNSRecord),
		SOA:  currentRow(dns.SOA, mapSOARecord),
		TXT:  currentRow(dns.TXT, mapTXTRecord),
	}
}

// mapHistoryDNS собирает историческую таблицу из ответов по типам записей.
func mapHistoryDNS(byType map[model.RecordType]*securitytrails.HistoryData) model.DNSTable {
	return model.DNSTable{
		A:    historyRows(byType[model.RecordTypeA], mapARecord),
		AAAA: historyRows(byType[model.RecordTypeAAAA], mapAAAARecord),
		MX:   historyRows(byType[model.RecordTypeMX], mapMXRecord),
		NS:   historyRows(byType[model.RecordTypeNS], mapNSRecord),
		SOA:  historyRows(byType[model.RecordTypeSOA], mapSOARecord),
		TXT:  historyRows(byType[model.RecordTypeTXT], mapTXTRecord),
	}
}
