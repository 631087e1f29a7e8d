package util

import (
	"regexp"
	"strings"
)

var (
	accountIDPattern     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)
	thresholdNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

func ValidateAccountID(id string) bool {
	return accountIDPattern.MatchString(id)
}

func ValidateCategoryName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && trimmed == name && len(name) <= 100
}

func ValidateThresholdName(name string) bool {
	return thresholdNamePattern.MatchString(name)
}
