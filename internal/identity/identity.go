// Package identity derives record identifiers and the bearer token from their
// owning fields. The concatenation order inside each function is part of the
// stored-data contract: existing rows were keyed with exactly these orders.
package identity

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/ZhonFortune/classtab-ics-backend/internal/digest"
)

// Token derives the session credential for a user. The same value is stored on
// the user row and copied onto every row the user owns, so it doubles as the
// ownership foreign key.
func Token(name, passwordHash string, level int) string {
	return digest.Sum(name + strconv.Itoa(level) + passwordHash)
}

// NewGroupID returns a fresh identifier for a period-template group or a term.
// The random salt makes repeated calls unique; this is label generation, not
// content addressing.
func NewGroupID(ownerToken string) string {
	return digest.Sum(ownerToken + uuid.NewString())
}

// PeriodEntryID is content-addressed: identical tuples always yield the same
// identifier, which is what makes duplicate submissions detectable.
func PeriodEntryID(ownerToken, groupID, label string, index, start, end int) string {
	return digest.Sum(label + strconv.Itoa(start) + groupID + ownerToken + strconv.Itoa(end) + strconv.Itoa(index))
}

// ClassEntryID is content-addressed over the slot a class occupies within a
// term. periodEntryID references the period-template entry (refc column).
func ClassEntryID(ownerToken, groupID, periodEntryID, week, weekday, classSlot string) string {
	return digest.Sum(periodEntryID + ownerToken + week + groupID + weekday + classSlot)
}
