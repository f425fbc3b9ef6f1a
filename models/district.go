package models

import "strings"

// DistrictOthers is the catch-all for damage outside the listed districts.
const DistrictOthers = "others"

// Districts lists the Sabah districts a report can be filed against, plus the
// "others" catch-all. Values are the lowercase form the report API expects.
var Districts = []string{
	"beaufort", "beluran", "keningau", "kinabatangan", "kota belud",
	"kota kinabalu", "kota marudu", "kuala penyu", "kudat", "kunak",
	"lahad datu", "nabawan", "papar", "penampang", "pitas",
	"putatan", "ranau", "sandakan", "semporna", "sipitang",
	"tambunan", "tawau", "tenom", "tongod", "tuaran", "telupid",
	DistrictOthers,
}

// IsValidDistrict reports whether s names a known district. The empty string
// means "unselected" and is not valid.
func IsValidDistrict(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, d := range Districts {
		if d == s {
			return true
		}
	}
	return false
}
