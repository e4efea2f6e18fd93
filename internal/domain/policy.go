package domain

// onlineBankingDisallowedCorpTypes lists corp types whose product policy
// forbids Online Banking as a settlement channel. The upstream account
// service is the system of record for this policy; this engine mirrors only
// the fixed set relevant to dispatch, rather than querying it live, since no
// corp-type service client is part of this engine's external interfaces
// (spec §6).
var onlineBankingDisallowedCorpTypes = map[string]bool{
	"CSO": true,
}

// IsOnlineBankingAllowed reports whether corpTypeCode may settle through the
// Online Banking pipeline (spec §4.3).
func IsOnlineBankingAllowed(corpTypeCode string) bool {
	return !onlineBankingDisallowedCorpTypes[corpTypeCode]
}
