package ironlicensing

import "strings"

// maskLicenseKey hides the middle of a license key before it reaches logs.
func maskLicenseKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

// maskEmail hides the local part of an email while preserving the domain.
func maskEmail(email string) string {
	if email == "" {
		return ""
	}
	at := strings.Index(email, "@")
	if at == -1 {
		return "****"
	}
	user, domain := email[:at], email[at:]
	if len(user) <= 2 {
		return "**" + domain
	}
	return user[:1] + "****" + user[len(user)-1:] + domain
}
