package sdk

import (
	"regexp"
	"strings"

	"github.com/otpless/loginpage/pkg/types"
)

// Extras keys understood by the login page.
const (
	ExtraPhone       = "phone"
	ExtraCountryCode = "countryCode"
	ExtraEmail       = "email"
)

var (
	countryCodePattern = regexp.MustCompile(`^\+?\d{1,4}$`)
	phonePattern       = regexp.MustCompile(`^\d+$`)
	emailPattern       = regexp.MustCompile(`^[A-Z0-9a-z._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,64}$`)
)

// validateExtras checks prefilled identifiers. A phone needs a valid
// country code; an email must look like an address. Absent keys pass.
func validateExtras(extras map[string]string) (types.AuthResult, bool) {
	if phone, ok := extras[ExtraPhone]; ok && phone != "" {
		cc := strings.TrimSpace(extras[ExtraCountryCode])
		if !countryCodePattern.MatchString(cc) || !phonePattern.MatchString(strings.TrimSpace(phone)) {
			return types.Failure(types.ErrorTypeInitiate, types.CodeInvalidPhone, types.MessageInvalidPhone), false
		}
	}
	if email, ok := extras[ExtraEmail]; ok && email != "" {
		if !emailPattern.MatchString(strings.TrimSpace(email)) {
			return types.Failure(types.ErrorTypeInitiate, types.CodeInvalidEmail, types.MessageInvalidEmail), false
		}
	}
	return types.AuthResult{}, true
}

// loginExtras copies extras for the login page, folding the country code
// into the phone number.
func loginExtras(extras map[string]string) map[string]string {
	out := make(map[string]string, len(extras))
	for k, v := range extras {
		out[k] = v
	}
	phone := strings.TrimSpace(out[ExtraPhone])
	cc := strings.TrimPrefix(strings.TrimSpace(out[ExtraCountryCode]), "+")
	if phone != "" && cc != "" {
		out[ExtraPhone] = "+" + cc + phone
	}
	return out
}
