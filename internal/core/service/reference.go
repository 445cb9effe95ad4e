package service

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	referenceAlphabet  = "0123456789abcdefghijklmnopqrstuvwxyz"
	referenceSuffixLen = 6
)

// ReferencePattern matches references produced by NewReference.
var ReferencePattern = regexp.MustCompile(`^[0-9A-Z]{10,20}$`)

// NewReference builds a human-shareable payment reference: the base36 millisecond
// timestamp followed by a random suffix, uppercased. Uniqueness is not checked.
func NewReference(now time.Time) (string, error) {
	suffix, err := gonanoid.Generate(referenceAlphabet, referenceSuffixLen)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36) + suffix), nil
}
