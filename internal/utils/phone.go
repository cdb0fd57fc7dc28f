package utils

import "strings"

// NormalizePhone turns a local number into international form without the
// plus sign: "0712..." becomes "254712..." for country code 254.
func NormalizePhone(phone, countryCode string) string {
	p := strings.TrimSpace(phone)
	p = strings.NewReplacer(" ", "", "-", "").Replace(p)
	p = strings.TrimPrefix(p, "+")
	if strings.HasPrefix(p, "0") {
		p = countryCode + p[1:]
	}
	return p
}
