package securitytrails

import "encoding/json"

// Status — исход запроса к SecurityTrails API.
type Status int

const (
	// StatusFetched — данные получены.
	StatusFetched Status = iota
	// StatusNoInfo — у провайдера нет информации по домену.
	StatusNoInfo
	// StatusUnauthorized — api-ключ отозван или недействителен.
	StatusUnauthorized
	// StatusInvalidDomain — провайдер счёл домен некорректным.
	StatusInvalidDomain
	// StatusAPIKeyExhausted — месячный бюджет ключа исчерпан.
	StatusAPIKeyExhausted
	// StatusUndefined — неопознанный ответ провайдера.
	StatusUndefined
)

// String возвращает строковое представление статуса.
func (s Status) String() string {
	switch s {
	case StatusFetched:
		return "fetched"
	case StatusNoInfo:
		return "no_info"
	case StatusUnauthorized:
		return "unauthorized"
	case StatusInvalidDomain:
		return "invalid_domain"
	case StatusAPIKeyExhausted:
		return "api_key_exhausted"
	default:
		return "undefined"
	}
}

// Usage — использование месячного бюджета api-ключа.
type Usage struct {
	CurrentMonthlyUsage int `json:"current_monthly_usage"`
	AllowedMonthlyUsage int `json:"allowed_monthly_usage"`
}

// Available возвращает остаток месячного бюджета ключа.
func (u *Usage) Available() int {
	available := u.AllowedMonthlyUsage - u.CurrentMonthlyUsage
	if available < 0 {
		return 0
	}
	return available
}

// RecordValue — одно значение DNS-записи в ответе провайдера.
// Набор заполненных полей зависит от типа записи.
type RecordValue struct {
	// A
	IP             string  `json:"ip,omitempty"`
	IPCount        int     `json:"ip_count,omitempty"`
	IPOrganization *string `json:"ip_organization,omitempty"`
	// AAAA
	IPv6             string  `json:"ipv6,omitempty"`
	IPv6Count        int     `json:"ipv6_count,omitempty"`
	IPv6Organization *string `json:"ipv6_organization,omitempty"`
	// MX
	Priority             int     `json:"priority,omitempty"`
	Host                 string  `json:"host,omitempty"`
	HostCount            int     `json:"host_count,omitempty"`
	HostnameOrganization *string `json:"hostname_organization,omitempty"`
	// NS
	Nameserver             string  `json:"nameserver,omitempty"`
	NameserverCount        int     `json:"nameserver_count,omitempty"`
	NameserverOrganization *string `json:"nameserver_organization,omitempty"`
	// SOA
	TTL        int    `json:"ttl,omitempty"`
	Email      string `json:"email,omitempty"`
	EmailCount int    `json:"email_count,omitempty"`
	// TXT
	Value string `json:"value,omitempty"`
}

// RecordValues — значения записи. Провайдер присылает либо список,
// либо одиночный объект; одиночный объект нормализуется в список.
type RecordValues []RecordValue

// UnmarshalJSON принимает и список значений, и одиночный объект.
func (v *RecordValues) UnmarshalJSON(data []byte) error {
	var list []RecordValue
	if err := json.Unmarshal(data, &list); err == nil {
		*v = list
		return nil
	}

	var single RecordValue
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*v = RecordValues{single}
	return nil
}

// RecordBlock — значения одного типа записи с временем первого наблюдения.
type RecordBlock struct {
	FirstSeen string       `json:"first_seen"`
	Values    RecordValues `json:"values"`
}

// CurrentDNS — текущие DNS-записи домена.
type CurrentDNS struct {
	A    *RecordBlock `json:"a"`
	AAAA *RecordBlock `json:"aaaa"`
	MX   *RecordBlock `json:"mx"`
	NS   *RecordBlock `json:"ns"`
	SOA  *RecordBlock `json:"soa"`
	TXT  *RecordBlock `json:"txt"`
}

// DomainData — ответ endpoint'а /domain/{domain}/.
type DomainData struct {
	Hostname   string     `json:"hostname"`
	AlexaRank  *int       `json:"alexa_rank"`
	CurrentDNS CurrentDNS `json:"current_dns"`
}

// SubdomainData — ответ endpoint'а /domain/{domain}/subdomains/.
type SubdomainData struct {
	SubdomainCount int      `json:"subdomain_count"`
	Subdomains     []string `json:"subdomains"`
}

// HistoryRecordBlock — исторический срез записей одного периода.
type HistoryRecordBlock struct {
	FirstSeen     string       `json:"first_seen"`
	LastSeen      string       `json:"last_seen"`
	Organizations []string     `json:"organizations"`
	Values        RecordValues `json:"values"`
}

// HistoryData — ответ endpoint'а /history/{domain}/dns/{type}/.
type HistoryData struct {
	Records []HistoryRecordBlock `json:"records"`
}

// errorDetails — тело ответа провайдера при статусе 400.
type errorDetails struct {
	Message string `json:"message"`
}
