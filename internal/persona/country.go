package persona

import "strings"

// DefaultCountry is used when the dial prefix is unknown.
const DefaultCountry = "Russia"

var dialPrefixes = map[string]string{
	"1":   "USA",
	"7":   "Russia",
	"33":  "France",
	"34":  "Spain",
	"39":  "Italy",
	"44":  "United Kingdom",
	"48":  "Poland",
	"49":  "Germany",
	"52":  "Mexico",
	"55":  "Brazil",
	"81":  "Japan",
	"82":  "South Korea",
	"86":  "China",
	"90":  "Turkey",
	"91":  "India",
	"371": "Latvia",
	"372": "Estonia",
	"373": "Moldova",
	"374": "Armenia",
	"375": "Belarus",
	"380": "Ukraine",
	"992": "Tajikistan",
	"993": "Turkmenistan",
	"994": "Azerbaijan",
	"995": "Georgia",
	"996": "Kyrgyzstan",
	"998": "Uzbekistan",
}

// CountryFromPhone maps the international dial prefix of phone to a country
// name, preferring the longest matching prefix. It returns "" when nothing
// matches.
func CountryFromPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	for length := 3; length >= 1; length-- {
		if len(digits) < length {
			continue
		}
		if country, ok := dialPrefixes[digits[:length]]; ok {
			return country
		}
	}
	return ""
}
